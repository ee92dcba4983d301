package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docflow/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EmbedderConfig controls batching.
type EmbedderConfig struct {
	// BatchSize is the number of chunks per provider call.
	BatchSize int
	// Concurrency bounds in-flight provider calls.
	Concurrency int
	// Name labels errors and logs, e.g. "fastembed".
	Name string
}

// Embedder splits chunks into batches, embeds them concurrently, and
// returns vectors in input order.
type Embedder struct {
	provider    Provider
	batchSize   int
	concurrency int
	name        string
	logger      *logging.Logger
}

// NewEmbedder wraps provider. The Embedder owns it: Close closes the provider.
func NewEmbedder(provider Provider, cfg EmbedderConfig, logger *logging.Logger) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%T", provider)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Embedder{
		provider:    provider,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		name:        cfg.Name,
		logger:      logger.Named("embeddings"),
	}
}

// Embed returns one vector per chunk, in order. Empty input gives empty
// output. Provider failures, short results, and vectors of the wrong length
// all surface as *EmbeddingError; context cancellation is returned as is.
func (e *Embedder) Embed(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	out, err := e.embed(ctx, chunks)
	result := "success"
	if err != nil {
		result = "error"
	}
	embedDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err != nil {
		e.logger.Warn(ctx, "embedding failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return nil, err
	}
	e.logger.Debug(ctx, "chunks embedded",
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", len(out[0])),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	want := e.provider.Dimension()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for lo := 0; lo < len(chunks); lo += e.batchSize {
		hi := min(lo+e.batchSize, len(chunks))
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vecs, err := e.provider.EmbedDocuments(gctx, chunks[lo:hi])
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &EmbeddingError{Provider: e.name, Err: err}
			}
			if len(vecs) != hi-lo {
				return &EmbeddingError{Provider: e.name, Err: fmt.Errorf("%w: sent %d texts, got %d vectors", ErrCountMismatch, hi-lo, len(vecs))}
			}
			for i, v := range vecs {
				if len(v) == 0 || (want > 0 && len(v) != want) {
					return &EmbeddingError{Provider: e.name, Err: fmt.Errorf("%w: chunk %d has %d values, want %d", ErrDimensionMismatch, lo+i, len(v), want)}
				}
			}
			copy(out[lo:hi], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Providers with unknown dimension must still be self-consistent.
	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim {
			return nil, &EmbeddingError{Provider: e.name, Err: fmt.Errorf("%w: chunk %d has %d values, chunk 0 has %d", ErrDimensionMismatch, i, len(v), dim)}
		}
	}
	return out, nil
}

// Dimension returns the provider's vector length, or 0 if unknown.
func (e *Embedder) Dimension() int {
	return e.provider.Dimension()
}

// Name returns the provider label.
func (e *Embedder) Name() string {
	return e.name
}

// Close closes the provider.
func (e *Embedder) Close() error {
	return e.provider.Close()
}
