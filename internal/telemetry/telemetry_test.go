package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.Enabled())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.False(t, tel.Enabled())
	degraded, _ := tel.Degraded()
	assert.False(t, degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"local grpc", func(c *Config) { c.Enabled = true }, false},
		{"loopback ip", func(c *Config) { c.Enabled = true; c.Endpoint = "127.0.0.1:4317" }, false},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"remote insecure", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, true},
		{"remote tls", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com"
			c.Protocol = ProtocolHTTP
			c.Insecure = false
		}, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"bad rate", func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, true},
		{"no service", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "docflow-worker",
		Endpoint:        "localhost:4318",
		Protocol:        ProtocolHTTP,
		Insecure:        true,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "docflow-worker", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.NoError(t, cfg.Validate())
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("docflow").Start(context.Background(), "ingest")
	span.End()
	assert.Equal(t, []string{"ingest"}, tt.SpanNames())

	counter, err := tt.Meter("docflow").Int64Counter("docflow.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
	assert.True(t, tt.HasMetric(t, "docflow.test.count"))
}
