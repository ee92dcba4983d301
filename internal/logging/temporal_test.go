package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestTemporalAdapter(t *testing.T) {
	tl := NewTestLogger()
	a := NewTemporalAdapter(tl.Logger)

	a.Info("Started Worker", "Namespace", "default", "TaskQueue", "doc-task-queue")
	a.Error("Activity error", "Error", errors.New("boom"))
	a.Debug("odd", "dangling")

	logs := tl.All()
	require.Len(t, logs, 3)

	assert.Equal(t, "temporal", logs[0].LoggerName)
	assert.Equal(t, zapcore.InfoLevel, logs[0].Level)
	assert.Equal(t, "doc-task-queue", logs[0].ContextMap()["TaskQueue"])

	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
	assert.Equal(t, "boom", logs[1].ContextMap()["Error"])

	assert.Equal(t, "dangling", logs[2].ContextMap()["_extra"])
}

func TestTemporalAdapter_With(t *testing.T) {
	tl := NewTestLogger()
	child := NewTemporalAdapter(tl.Logger).With("WorkflowID", "workflow-1")

	child.Warn("retrying")

	tl.AssertLogged(t, zapcore.WarnLevel, "retrying")
	tl.AssertField(t, "retrying", "WorkflowID", "workflow-1")
}

func TestToFields_NonStringKey(t *testing.T) {
	fields := toFields([]interface{}{42, "v"})
	require.Len(t, fields, 1)
	assert.Equal(t, "42", fields[0].Key)
}
