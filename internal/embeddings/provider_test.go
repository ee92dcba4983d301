package embeddings

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelDimension(t *testing.T) {
	dim, ok := ModelDimension("sentence-transformers/all-MiniLM-L6-v2")
	assert.True(t, ok)
	assert.Equal(t, 384, dim)

	_, ok = ModelDimension("my-custom-model")
	assert.False(t, ok)

	assert.Equal(t, 1024, dimensionFor("my-custom-model", 1024))
	assert.Equal(t, 0, dimensionFor("my-custom-model", 0))
}

func TestNewProvider_Remote(t *testing.T) {
	cfg := config.Default().Embeddings

	cfg.Provider = config.ProviderTEI
	p, err := NewProvider(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &Service{}, p)
	assert.Equal(t, 384, p.Dimension())

	cfg.Provider = config.ProviderOpenAI
	p, err = NewProvider(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)
}

func TestNewProvider_Unknown(t *testing.T) {
	cfg := config.Default().Embeddings
	cfg.Provider = "word2vec"

	_, err := NewProvider(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
