package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
)

// Fetcher retrieves raw document bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser splits raw bytes into ordered text chunks.
type Parser interface {
	Parse(ctx context.Context, content []byte, nameHint string) ([]string, error)
}

// Embedder maps chunks to vectors, one per chunk.
type Embedder interface {
	Embed(ctx context.Context, chunks []string) ([][]float32, error)
	Dimension() int
}

// Activity inputs.

type FetchInput struct {
	DocumentID string `json:"document_id"`
	SourceURL  string `json:"source_url"`
}

type ParseInput struct {
	DocumentID string `json:"document_id"`
	// NameHint selects the format by extension; the source URL is used.
	NameHint string `json:"name_hint"`
	Content  []byte `json:"content"`
}

type EmbedInput struct {
	DocumentID string   `json:"document_id"`
	Chunks     []string `json:"chunks"`
}

type StoreInput struct {
	DocumentID string      `json:"document_id"`
	Chunks     []string    `json:"chunks"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Activities holds the pipeline components. The worker constructs one
// instance, registers it, and owns the lifetime of its components.
type Activities struct {
	fetcher    Fetcher
	parser     Parser
	embedder   Embedder
	store      vectorstore.Store
	logger     *logging.Logger
	maxPayload int
}

// ActivityOption configures Activities.
type ActivityOption func(*Activities)

// WithMaxPayloadBytes caps the size of the payloads a run writes to
// workflow history. Non-positive values keep DefaultMaxPayloadBytes.
func WithMaxPayloadBytes(n int) ActivityOption {
	return func(a *Activities) {
		if n > 0 {
			a.maxPayload = n
		}
	}
}

// NewActivities wires components into activities.
func NewActivities(f Fetcher, p Parser, e Embedder, s vectorstore.Store, logger *logging.Logger, opts ...ActivityOption) (*Activities, error) {
	if f == nil || p == nil || e == nil || s == nil {
		return nil, fmt.Errorf("fetcher, parser, embedder and store are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Activities{
		fetcher:    f,
		parser:     p,
		embedder:   e,
		store:      s,
		logger:     logger.Named("activities"),
		maxPayload: DefaultMaxPayloadBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// FetchDocument downloads the source document.
func (a *Activities) FetchDocument(ctx context.Context, in FetchInput) ([]byte, error) {
	ctx, done := a.begin(ctx, StageFetch, in.DocumentID)
	content, err := a.fetcher.Fetch(ctx, in.SourceURL)
	if err == nil {
		if n := contentPayloadSize(content); n > a.maxPayload {
			err = &PayloadTooLargeError{Stage: StageFetch, Estimate: n, Limit: a.maxPayload}
		}
	}
	done(err, zap.Int("bytes", len(content)))
	if err != nil {
		return nil, classify(err)
	}
	return content, nil
}

// ParseDocument extracts text chunks. An empty result is not an error here;
// the store stage rejects it. Chunks whose embedded form would not fit in
// one history payload fail the run before any embedding work.
func (a *Activities) ParseDocument(ctx context.Context, in ParseInput) ([]string, error) {
	ctx, done := a.begin(ctx, StageParse, in.DocumentID)
	chunks, err := a.parser.Parse(ctx, in.Content, in.NameHint)
	if err == nil {
		if n := storePayloadSize(in.DocumentID, chunks, a.embedder.Dimension()); n > a.maxPayload {
			err = &PayloadTooLargeError{Stage: StageStore, Chunks: len(chunks), Estimate: n, Limit: a.maxPayload}
		}
	}
	done(err, zap.Int("chunks", len(chunks)))
	if err != nil {
		return nil, classify(err)
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks, nil
}

// GenerateEmbeddings embeds every chunk, preserving order.
func (a *Activities) GenerateEmbeddings(ctx context.Context, in EmbedInput) ([][]float32, error) {
	ctx, done := a.begin(ctx, StageEmbed, in.DocumentID)
	vectors, err := a.embedder.Embed(ctx, in.Chunks)
	done(err, zap.Int("vectors", len(vectors)))
	if err != nil {
		return nil, classify(err)
	}
	return vectors, nil
}

// StoreEmbeddings persists chunks and their vectors.
func (a *Activities) StoreEmbeddings(ctx context.Context, in StoreInput) (*vectorstore.StoreReceipt, error) {
	ctx, done := a.begin(ctx, StageStore, in.DocumentID)
	receipt, err := a.store.Insert(ctx, in.DocumentID, in.Chunks, in.Embeddings)
	if receipt != nil {
		done(err, zap.Int("inserted", receipt.Inserted))
	} else {
		done(err)
	}
	if err != nil {
		return nil, classify(err)
	}
	return receipt, nil
}

// begin tags ctx for correlated logging and returns a func that logs and
// records the outcome of the stage.
func (a *Activities) begin(ctx context.Context, stage Stage, documentID string) (context.Context, func(error, ...zap.Field)) {
	attempt := int32(1)
	if activity.IsActivity(ctx) {
		info := activity.GetInfo(ctx)
		ctx = logging.WithRunID(ctx, info.WorkflowExecution.ID)
		attempt = info.Attempt
	}
	ctx = logging.WithDocumentID(ctx, documentID)
	a.logger.Debug(ctx, "stage started", zap.String("stage", string(stage)), zap.Int32("attempt", attempt))

	start := time.Now()
	return ctx, func(err error, fields ...zap.Field) {
		elapsed := time.Since(start)
		recordActivity(ctx, stage, elapsed, err)

		fields = append(fields,
			zap.String("stage", string(stage)),
			zap.Int32("attempt", attempt),
			zap.Duration("duration", elapsed),
		)
		if err != nil {
			a.logger.Warn(ctx, "stage failed", append(fields, zap.Error(err))...)
			return
		}
		a.logger.Info(ctx, "stage completed", fields...)
	}
}
