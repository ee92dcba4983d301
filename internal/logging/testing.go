package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger backed by an in-memory observer, for assertions in
// tests of packages that log.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger captures every entry at Trace and above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset clears all logged entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails tb unless an entry at level mentions msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected %v log containing %q, got %d entries", level, msgContains, t.observed.Len())
}

// AssertField fails tb unless an entry mentioning msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		if v, ok := entry.ContextMap()[key]; ok && v == expected {
			return
		}
	}
	tb.Errorf("field %q=%v not found on %q", key, expected, msg)
}

// AssertNoValue fails tb if any string field or message contains needle.
// Used to prove credentials in source URLs never reach the log.
func (t *TestLogger) AssertNoValue(tb testing.TB, needle string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if strings.Contains(entry.Message, needle) {
			tb.Errorf("message leaks %q: %q", needle, entry.Message)
		}
		for _, f := range entry.Context {
			if f.Type == zapcore.StringType && strings.Contains(f.String, needle) {
				tb.Errorf("field %q leaks %q", f.Key, needle)
			}
		}
	}
}
