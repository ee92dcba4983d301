package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, cfg, logger.config)
}

func TestNewLogger_NoOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	// OTEL enabled but no provider: nothing to write to.
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestLogger_Levels(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := NewFromZap(zap.New(core))
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func(string)
		level zapcore.Level
	}{
		{"trace", func(m string) { logger.Trace(ctx, m) }, TraceLevel},
		{"debug", func(m string) { logger.Debug(ctx, m) }, zapcore.DebugLevel},
		{"info", func(m string) { logger.Info(ctx, m) }, zapcore.InfoLevel},
		{"warn", func(m string) { logger.Warn(ctx, m) }, zapcore.WarnLevel},
		{"error", func(m string) { logger.Error(ctx, m) }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.log(tt.name + " message")

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.name+" message", logs[0].Message)
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithDocumentID(context.Background(), "doc-1")
	ctx = WithRunID(ctx, "workflow-abc")

	tl.Info(ctx, "stage complete", zap.String("stage", "fetch"))

	tl.AssertLogged(t, zapcore.InfoLevel, "stage complete")
	tl.AssertField(t, "stage complete", "document_id", "doc-1")
	tl.AssertField(t, "stage complete", "run_id", "workflow-abc")
	tl.AssertField(t, "stage complete", "stage", "fetch")
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(zap.String("component", "fetcher")).Named("fetch")

	child.Info(context.Background(), "hello")

	logs := tl.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "fetch", logs[0].LoggerName)
	assert.Equal(t, "fetcher", logs[0].ContextMap()["component"])
}

func TestLogger_Enabled(t *testing.T) {
	core, _ := observer.New(zapcore.WarnLevel)
	logger := NewFromZap(zap.New(core))

	assert.False(t, logger.Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Enabled(zapcore.ErrorLevel))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()), "falls back to nop")

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from ctx")

	tl.AssertLogged(t, zapcore.WarnLevel, "from ctx")
}

func TestConfigFrom(t *testing.T) {
	cfg, err := ConfigFrom(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	cfg, err = ConfigFrom(config.LogConfig{Level: "trace"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)

	_, err = ConfigFrom(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = ConfigFrom(config.LogConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestSampledCore_ErrorsAlwaysPass(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(60_000_000_000),
		Initial:    1,
		Thereafter: 1000,
	})
	logger := NewFromZap(zap.New(sampled))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		logger.Info(ctx, "repeated")
		logger.Error(ctx, "failure")
	}

	assert.Equal(t, 1, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 5, observed.FilterMessage("failure").Len())
}
