//go:build !cgo

package embeddings

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/docflow/internal/logging"
)

// DefaultFastEmbedModel matches the model the pipeline was sized for.
const DefaultFastEmbedModel = "sentence-transformers/all-MiniLM-L6-v2"

// ErrFastEmbedNotAvailable is returned by binaries built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available in builds without cgo, use the tei or openai provider")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub in builds without cgo.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without cgo.
func NewFastEmbedProvider(_ context.Context, _ FastEmbedConfig, _ *logging.Logger) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) Dimension() int { return 0 }

func (p *FastEmbedProvider) Close() error { return nil }
