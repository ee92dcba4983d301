package logging

import (
	"fmt"

	tlog "go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TemporalAdapter satisfies the Temporal SDK's log.Logger so the client,
// worker and workflow loggers write through the same zap core.
type TemporalAdapter struct {
	zap *zap.Logger
}

var (
	_ tlog.Logger          = (*TemporalAdapter)(nil)
	_ tlog.WithLogger      = (*TemporalAdapter)(nil)
	_ tlog.WithSkipCallers = (*TemporalAdapter)(nil)
)

// NewTemporalAdapter wraps l for use in client.Options.Logger.
func NewTemporalAdapter(l *Logger) *TemporalAdapter {
	return &TemporalAdapter{zap: l.zap.Named("temporal")}
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.write(zapcore.DebugLevel, msg, keyvals)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.write(zapcore.InfoLevel, msg, keyvals)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.write(zapcore.WarnLevel, msg, keyvals)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.write(zapcore.ErrorLevel, msg, keyvals)
}

// With returns an adapter carrying keyvals on every entry.
func (a *TemporalAdapter) With(keyvals ...interface{}) tlog.Logger {
	return &TemporalAdapter{zap: a.zap.With(toFields(keyvals)...)}
}

// WithCallerSkip adds depth frames to the reported caller.
func (a *TemporalAdapter) WithCallerSkip(depth int) tlog.Logger {
	return &TemporalAdapter{zap: a.zap.WithOptions(zap.AddCallerSkip(depth))}
}

func (a *TemporalAdapter) write(lvl zapcore.Level, msg string, keyvals []interface{}) {
	if ce := a.zap.Check(lvl, msg); ce != nil {
		ce.Write(toFields(keyvals)...)
	}
}

// toFields pairs up Temporal's alternating key/value list. A trailing key
// without a value is logged under "_extra".
func toFields(keyvals []interface{}) []zap.Field {
	if len(keyvals) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			fields = append(fields, zap.Any("_extra", keyvals[i]))
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}
