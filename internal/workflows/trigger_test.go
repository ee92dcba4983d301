package workflows

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docflow/internal/logging"
)

func TestTrigger_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("starts a run on the task queue", func(t *testing.T) {
		c := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		run.On("GetID").Return("workflow-abc")
		run.On("GetRunID").Return("run-1")

		var gotOpts client.StartWorkflowOptions
		var gotInput IngestionInput
		c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				gotOpts = args.Get(1).(client.StartWorkflowOptions)
				gotInput = args.Get(3).(IngestionInput)
			}).
			Return(run, nil)

		logs := logging.NewTestLogger()
		opts := &PipelineOptions{Retry: RetryOptions{MaxAttempts: 5}}
		tr := NewTrigger(c, "", opts, logs.Logger)

		h, err := tr.Start(ctx, "doc-1", "https://user:pw@example.com/a.txt?token=secret")
		require.NoError(t, err)
		assert.Equal(t, RunHandle{WorkflowID: "workflow-abc", RunID: "run-1"}, h)

		assert.Equal(t, TaskQueue, gotOpts.TaskQueue)
		assert.True(t, strings.HasPrefix(gotOpts.ID, WorkflowIDPrefix))
		assert.Len(t, strings.TrimPrefix(gotOpts.ID, WorkflowIDPrefix), 36)
		assert.Equal(t, "doc-1", gotInput.DocumentID)
		assert.Same(t, opts, gotInput.Options)

		logs.AssertLogged(t, zapcore.InfoLevel, "ingestion started")
		logs.AssertNoValue(t, "secret")
		logs.AssertNoValue(t, "pw@")
		c.AssertExpectations(t)
	})

	t.Run("invalid input never reaches the client", func(t *testing.T) {
		c := &mocks.Client{}
		tr := NewTrigger(c, "q", nil, nil)

		_, err := tr.Start(ctx, "", "https://example.com/a.txt")
		require.Error(t, err)
		c.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("client failure is wrapped", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused"))
		tr := NewTrigger(c, "q", nil, nil)

		_, err := tr.Start(ctx, "doc-1", "https://example.com/a.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "starting workflow")
	})
}

func TestTrigger_Await(t *testing.T) {
	ctx := context.Background()
	h := RunHandle{WorkflowID: "workflow-abc", RunID: "run-1"}

	t.Run("returns the summary", func(t *testing.T) {
		c := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		run.On("Get", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				*args.Get(1).(*RunSummary) = RunSummary{DocumentID: "doc-1", ChunkCount: 3, Backend: "sqlite"}
			}).
			Return(nil)
		c.On("GetWorkflow", mock.Anything, h.WorkflowID, h.RunID).Return(run)

		summary, err := NewTrigger(c, "", nil, nil).Await(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.ChunkCount)
	})

	t.Run("failure keeps the taxonomy type", func(t *testing.T) {
		c := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		run.On("Get", mock.Anything, mock.Anything).
			Return(temporal.NewApplicationError("nothing to insert", ErrTypePrecondition))
		c.On("GetWorkflow", mock.Anything, h.WorkflowID, h.RunID).Return(run)

		_, err := NewTrigger(c, "", nil, nil).Await(ctx, h)
		require.Error(t, err)

		var wfErr *WorkflowError
		require.True(t, errors.As(err, &wfErr))
		assert.Equal(t, ErrorSeverityCritical, wfErr.Severity)
		assert.Equal(t, "ingest", wfErr.Operation)
		assert.Equal(t, ErrTypePrecondition, ErrorType(err))
	})
}

func TestTrigger_State(t *testing.T) {
	ctx := context.Background()
	h := RunHandle{WorkflowID: "workflow-abc", RunID: "run-1"}

	c := &mocks.Client{}
	val := &mocks.Value{}
	val.On("Get", mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(0).(*RunState) = RunState{State: StatusParsing, Stage: StageParse}
		}).
		Return(nil)
	c.On("QueryWorkflow", mock.Anything, h.WorkflowID, h.RunID, QueryRunState).Return(val, nil)

	st, err := NewTrigger(c, "", nil, nil).State(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, StatusParsing, st.State)
	assert.Equal(t, StageParse, st.Stage)
}
