package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
)

const (
	testDocID = "2501.08266"
	testURL   = "https://example.com/papers/2501.08266.md"
)

func newTestEnv() *testsuite.TestWorkflowEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(IngestionWorkflow)
	return env
}

func queryState(t *testing.T, env *testsuite.TestWorkflowEnvironment) RunState {
	t.Helper()
	val, err := env.QueryWorkflow(QueryRunState)
	require.NoError(t, err)
	var st RunState
	require.NoError(t, val.Get(&st))
	return st
}

func workflowErrorType(t *testing.T, err error) string {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected ApplicationError in chain, got %v", err)
	return appErr.Type()
}

func TestIngestionWorkflow(t *testing.T) {
	t.Run("runs all stages in order", func(t *testing.T) {
		env := newTestEnv()

		content := []byte("# Title\n\nBody text.")
		chunks := []string{"Title", "Body text."}
		vectors := [][]float32{{1, 0}, {0, 1}}

		env.OnActivity(activities.FetchDocument, mock.Anything, FetchInput{
			DocumentID: testDocID,
			SourceURL:  testURL,
		}).Return(content, nil).Once()
		env.OnActivity(activities.ParseDocument, mock.Anything, ParseInput{
			DocumentID: testDocID,
			NameHint:   testURL,
			Content:    content,
		}).Return(chunks, nil).Once()
		env.OnActivity(activities.GenerateEmbeddings, mock.Anything, EmbedInput{
			DocumentID: testDocID,
			Chunks:     chunks,
		}).Return(vectors, nil).Once()
		env.OnActivity(activities.StoreEmbeddings, mock.Anything, StoreInput{
			DocumentID: testDocID,
			Chunks:     chunks,
			Embeddings: vectors,
		}).Return(&vectorstore.StoreReceipt{
			DocumentID: testDocID,
			Inserted:   2,
			Collection: "doc_chunks",
			Backend:    "qdrant",
		}, nil).Once()

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: testDocID, SourceURL: testURL})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var summary RunSummary
		require.NoError(t, env.GetWorkflowResult(&summary))
		assert.Equal(t, testDocID, summary.DocumentID)
		assert.Equal(t, 2, summary.ChunkCount)
		assert.Equal(t, "doc_chunks", summary.Collection)
		assert.Equal(t, "File ID: 2501.08266, processed 2 chunks with embeddings and stored in qdrant.", summary.Message)

		assert.Equal(t, RunState{State: StatusCompleted}, queryState(t, env))
		env.AssertExpectations(t)
	})

	t.Run("parse error is not retried", func(t *testing.T) {
		env := newTestEnv()

		env.OnActivity(activities.FetchDocument, mock.Anything, mock.Anything).Return([]byte("%PDF-broken"), nil)
		env.OnActivity(activities.ParseDocument, mock.Anything, mock.Anything).
			Return(nil, temporal.NewApplicationError("parse pdf: malformed xref", ErrTypeParse))

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: testDocID, SourceURL: testURL})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypeParse, workflowErrorType(t, err))
		assert.Contains(t, err.Error(), "malformed xref")

		env.AssertNumberOfCalls(t, "FetchDocument", 1)
		env.AssertNumberOfCalls(t, "ParseDocument", 1)
		env.AssertNotCalled(t, "GenerateEmbeddings", mock.Anything, mock.Anything)

		st := queryState(t, env)
		assert.Equal(t, StatusFailed, st.State)
		assert.Equal(t, StageParse, st.Stage)
		assert.Contains(t, st.Error, "malformed xref")
	})

	t.Run("transient parse error is retried", func(t *testing.T) {
		env := newTestEnv()

		env.OnActivity(activities.FetchDocument, mock.Anything, mock.Anything).Return([]byte("text"), nil)
		env.OnActivity(activities.ParseDocument, mock.Anything, mock.Anything).
			Return(nil, temporal.NewApplicationError("staging dir: disk full", ErrTypeTransientParse)).Once()
		env.OnActivity(activities.ParseDocument, mock.Anything, mock.Anything).Return([]string{"text"}, nil).Once()
		env.OnActivity(activities.GenerateEmbeddings, mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
		env.OnActivity(activities.StoreEmbeddings, mock.Anything, mock.Anything).
			Return(&vectorstore.StoreReceipt{DocumentID: testDocID, Inserted: 1, Backend: "sqlite"}, nil)

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: testDocID, SourceURL: testURL})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		env.AssertNumberOfCalls(t, "ParseDocument", 2)
	})

	t.Run("fetch retries are bounded", func(t *testing.T) {
		env := newTestEnv()

		env.OnActivity(activities.FetchDocument, mock.Anything, mock.Anything).
			Return(nil, temporal.NewApplicationError("GET https://example.com: status 503", ErrTypeFetch))

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: testDocID, SourceURL: testURL})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypeFetch, workflowErrorType(t, err))
		env.AssertNumberOfCalls(t, "FetchDocument", 3)
		env.AssertNotCalled(t, "ParseDocument", mock.Anything, mock.Anything)
	})

	t.Run("retry attempts follow options", func(t *testing.T) {
		env := newTestEnv()

		env.OnActivity(activities.FetchDocument, mock.Anything, mock.Anything).
			Return(nil, temporal.NewApplicationError("connection refused", ErrTypeFetch))

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{
			DocumentID: testDocID,
			SourceURL:  testURL,
			Options:    &PipelineOptions{Retry: RetryOptions{MaxAttempts: 5}},
		})

		require.Error(t, env.GetWorkflowError())
		env.AssertNumberOfCalls(t, "FetchDocument", 5)
	})

	t.Run("precondition failure on empty document", func(t *testing.T) {
		env := newTestEnv()

		env.OnActivity(activities.FetchDocument, mock.Anything, mock.Anything).Return([]byte("   \n\n  "), nil)
		env.OnActivity(activities.ParseDocument, mock.Anything, mock.Anything).Return([]string{}, nil)
		env.OnActivity(activities.GenerateEmbeddings, mock.Anything, mock.Anything).Return([][]float32{}, nil)
		env.OnActivity(activities.StoreEmbeddings, mock.Anything, mock.Anything).
			Return(nil, temporal.NewApplicationError("store precondition failed: nothing to insert", ErrTypePrecondition))

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: testDocID, SourceURL: testURL})

		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypePrecondition, workflowErrorType(t, err))
		env.AssertNumberOfCalls(t, "StoreEmbeddings", 1)
	})

	t.Run("invalid input fails before any activity", func(t *testing.T) {
		env := newTestEnv()

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: "", SourceURL: "not a url"})

		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypeInvalidInput, workflowErrorType(t, err))
		assert.Equal(t, StatusFailed, queryState(t, env).State)
	})

	t.Run("cancellation stops at the next stage boundary", func(t *testing.T) {
		env := newTestEnv()

		env.OnActivity(activities.FetchDocument, mock.Anything, mock.Anything).
			After(10*time.Second).Return([]byte("text"), nil)

		env.RegisterDelayedCallback(func() {
			env.CancelWorkflow()
		}, time.Second)

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: testDocID, SourceURL: testURL})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		var canceled *temporal.CanceledError
		assert.True(t, errors.As(err, &canceled), "expected CanceledError, got %v", err)
		env.AssertNotCalled(t, "ParseDocument", mock.Anything, mock.Anything)
	})

	t.Run("state is observable mid-run", func(t *testing.T) {
		env := newTestEnv()

		env.OnActivity(activities.FetchDocument, mock.Anything, mock.Anything).Return([]byte("text"), nil)
		env.OnActivity(activities.ParseDocument, mock.Anything, mock.Anything).Return([]string{"text"}, nil)
		env.OnActivity(activities.GenerateEmbeddings, mock.Anything, mock.Anything).
			After(time.Minute).Return([][]float32{{1}}, nil)
		env.OnActivity(activities.StoreEmbeddings, mock.Anything, mock.Anything).
			Return(&vectorstore.StoreReceipt{DocumentID: testDocID, Inserted: 1, Backend: "sqlite"}, nil)

		var mid RunState
		env.RegisterDelayedCallback(func() {
			mid = queryState(t, env)
		}, 30*time.Second)

		env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{DocumentID: testDocID, SourceURL: testURL})

		require.NoError(t, env.GetWorkflowError())
		assert.Equal(t, RunState{State: StatusEmbedding, Stage: StageEmbed}, mid)
	})
}
