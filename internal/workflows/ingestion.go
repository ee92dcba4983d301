package workflows

import (
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
)

// activities is the nil receiver used to name activity methods.
var activities *Activities

// IngestionWorkflow fetches, parses, embeds, and stores one document.
//
// Cancellation is checked before each stage. A failed stage fails the run
// with the activity's ApplicationError, so callers see the taxonomy type.
func IngestionWorkflow(ctx workflow.Context, input IngestionInput) (*RunSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting ingestion",
		"document_id", input.DocumentID,
		"source_url", input.SourceURL,
	)

	state := RunState{State: StatusCreated}
	if err := workflow.SetQueryHandler(ctx, QueryRunState, func() (RunState, error) {
		return state, nil
	}); err != nil {
		return nil, err
	}

	fail := func(stage Stage, err error) (*RunSummary, error) {
		state.State = StatusFailed
		state.Stage = stage
		state.Error = err.Error()
		logger.Error("Ingestion failed", "document_id", input.DocumentID, "stage", string(stage), "error", err)
		return nil, err
	}

	if err := input.Validate(); err != nil {
		return fail("", temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, nil))
	}

	policy := input.Options.retryPolicy()
	run := func(stage Stage, status RunStatus, activity, arg, result interface{}) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		state.State = status
		state.Stage = stage
		actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			ScheduleToCloseTimeout: input.Options.timeout(stage),
			RetryPolicy:            policy,
		})
		return workflow.ExecuteActivity(actx, activity, arg).Get(actx, result)
	}

	var content []byte
	if err := run(StageFetch, StatusFetching, activities.FetchDocument, FetchInput{
		DocumentID: input.DocumentID,
		SourceURL:  input.SourceURL,
	}, &content); err != nil {
		return fail(StageFetch, err)
	}

	var chunks []string
	if err := run(StageParse, StatusParsing, activities.ParseDocument, ParseInput{
		DocumentID: input.DocumentID,
		NameHint:   input.SourceURL,
		Content:    content,
	}, &chunks); err != nil {
		return fail(StageParse, err)
	}
	logger.Info("Parsed document", "document_id", input.DocumentID, "chunks", len(chunks))

	var vectors [][]float32
	if err := run(StageEmbed, StatusEmbedding, activities.GenerateEmbeddings, EmbedInput{
		DocumentID: input.DocumentID,
		Chunks:     chunks,
	}, &vectors); err != nil {
		return fail(StageEmbed, err)
	}

	var receipt vectorstore.StoreReceipt
	if err := run(StageStore, StatusStoring, activities.StoreEmbeddings, StoreInput{
		DocumentID: input.DocumentID,
		Chunks:     chunks,
		Embeddings: vectors,
	}, &receipt); err != nil {
		return fail(StageStore, err)
	}

	state.State = StatusCompleted
	state.Stage = ""
	summary := &RunSummary{
		DocumentID: input.DocumentID,
		ChunkCount: receipt.Inserted,
		Collection: receipt.Collection,
		Backend:    receipt.Backend,
		Message:    SummaryMessage(input.DocumentID, receipt.Inserted, receipt.Backend),
	}
	logger.Info(summary.Message)
	return summary, nil
}
