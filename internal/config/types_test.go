package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")
	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())

	b, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(b))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestByteSize_UnmarshalText(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"2048", 2048},
		{"512KB", 512000},
		{"512KiB", 512 << 10},
		{"10MiB", 10 << 20},
		{"1 GiB", 1 << 30},
		{"7b", 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b ByteSize
			require.NoError(t, b.UnmarshalText([]byte(tt.in)))
			assert.Equal(t, tt.want, b.Int64())
		})
	}

	var b ByteSize
	assert.Error(t, b.UnmarshalText([]byte("lots")))
	assert.Error(t, b.UnmarshalText([]byte("-5MB")))
}
