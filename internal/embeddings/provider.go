// Package embeddings maps text chunks to fixed-dimension vectors.
//
// A Provider talks to one model backend: a local ONNX model through
// fastembed (default), a text-embeddings-inference server, or an
// OpenAI-compatible API. Embedder fans batches out to the provider with
// bounded concurrency and checks every result before returning it.
package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/logging"
)

// Provider embeds a batch of texts. Implementations must be safe for
// concurrent use; Embedder calls EmbedDocuments from several goroutines.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector length, or 0 when not known up front.
	Dimension() int
	Close() error
}

var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-all-MiniLM-L6-v2":                  384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// ModelDimension returns the vector length of a well-known model.
func ModelDimension(model string) (int, bool) {
	dim, ok := knownDimensions[model]
	return dim, ok
}

// NewProvider builds the provider selected in cfg.
func NewProvider(ctx context.Context, cfg config.EmbeddingsConfig, logger *logging.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderFastEmbed, "":
		return NewFastEmbedProvider(ctx, FastEmbedConfig{
			Model:     cfg.FastEmbed.Model,
			CacheDir:  cfg.FastEmbed.CacheDir,
			MaxLength: cfg.FastEmbed.MaxLength,
		}, logger)
	case config.ProviderTEI:
		return NewService(Config{
			BaseURL:   cfg.TEI.BaseURL,
			Model:     cfg.TEI.Model,
			APIKey:    cfg.TEI.APIKey.Value(),
			Dimension: cfg.TEI.Dimension,
		})
	case config.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.OpenAI.Model,
			APIKey:    cfg.OpenAI.APIKey.Value(),
			Dimension: cfg.OpenAI.Dimension,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// dimensionFor prefers an explicit setting over the model table.
func dimensionFor(model string, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	dim, _ := ModelDimension(model)
	return dim
}
