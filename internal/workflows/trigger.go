package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docflow/internal/logging"
)

// RunHandle identifies a started run.
type RunHandle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Trigger starts ingestion runs and reads their state and results.
type Trigger struct {
	client    client.Client
	taskQueue string
	options   *PipelineOptions
	logger    *logging.Logger
}

// NewTrigger wraps a Temporal client. options may be nil for defaults.
func NewTrigger(c client.Client, taskQueue string, options *PipelineOptions, logger *logging.Logger) *Trigger {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Trigger{
		client:    c,
		taskQueue: taskQueue,
		options:   options,
		logger:    logger.Named("trigger"),
	}
}

// Start schedules a run for (documentID, sourceURL) under a fresh
// workflow-<uuid> id. It does not wait for the run.
func (t *Trigger) Start(ctx context.Context, documentID, sourceURL string) (RunHandle, error) {
	input := IngestionInput{
		DocumentID: documentID,
		SourceURL:  sourceURL,
		Options:    t.options,
	}
	if err := input.Validate(); err != nil {
		return RunHandle{}, fmt.Errorf("invalid ingestion input: %w", err)
	}

	opts := client.StartWorkflowOptions{
		ID:        WorkflowIDPrefix + uuid.NewString(),
		TaskQueue: t.taskQueue,
	}
	run, err := t.client.ExecuteWorkflow(ctx, opts, IngestionWorkflow, input)
	if err != nil {
		return RunHandle{}, fmt.Errorf("starting workflow: %w", err)
	}

	handle := RunHandle{WorkflowID: run.GetID(), RunID: run.GetRunID()}
	runsStarted.Add(ctx, 1)
	t.logger.Info(logging.WithDocumentID(ctx, documentID), "ingestion started",
		zap.String("workflow_id", handle.WorkflowID),
		zap.String("temporal_run_id", handle.RunID),
		logging.URL("source_url", sourceURL),
	)
	return handle, nil
}

// Await blocks until the run completes. A failed run returns a
// *WorkflowError whose chain holds the stage's ApplicationError.
func (t *Trigger) Await(ctx context.Context, h RunHandle) (*RunSummary, error) {
	var summary RunSummary
	err := t.client.GetWorkflow(ctx, h.WorkflowID, h.RunID).Get(ctx, &summary)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &WorkflowError{
			Operation: string(failedStage(err)),
			Severity:  severityOf(err),
			Err:       err,
		}
	}
	return &summary, nil
}

// State queries the run's current lifecycle state.
func (t *Trigger) State(ctx context.Context, h RunHandle) (*RunState, error) {
	val, err := t.client.QueryWorkflow(ctx, h.WorkflowID, h.RunID, QueryRunState)
	if err != nil {
		return nil, fmt.Errorf("querying run state: %w", err)
	}
	var st RunState
	if err := val.Get(&st); err != nil {
		return nil, fmt.Errorf("decoding run state: %w", err)
	}
	return &st, nil
}

// failedStage maps the failed activity back to its stage.
func failedStage(err error) Stage {
	var actErr *temporal.ActivityError
	if !errors.As(err, &actErr) {
		return "ingest"
	}
	name := actErr.ActivityType().GetName()
	switch {
	case strings.HasSuffix(name, "FetchDocument"):
		return StageFetch
	case strings.HasSuffix(name, "ParseDocument"):
		return StageParse
	case strings.HasSuffix(name, "GenerateEmbeddings"):
		return StageEmbed
	case strings.HasSuffix(name, "StoreEmbeddings"):
		return StageStore
	default:
		return Stage(name)
	}
}

func severityOf(err error) ErrorSeverity {
	switch ErrorType(err) {
	case ErrTypeUnsupportedFormat, ErrTypeParse, ErrTypePrecondition, ErrTypeSchemaMismatch,
		ErrTypePayloadTooLarge, ErrTypeInvalidInput:
		return ErrorSeverityCritical
	default:
		return ErrorSeverityHigh
	}
}
