//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"go.uber.org/zap"
)

// DefaultFastEmbedModel matches the model the pipeline was sized for.
const DefaultFastEmbedModel = "sentence-transformers/all-MiniLM-L6-v2"

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model name, either the HuggingFace id or fastembed's own name.
	Model string

	// CacheDir holds downloaded model files. Defaults to
	// ~/.cache/docflow/models.
	CacheDir string

	// MaxLength is the token limit; longer input is truncated.
	MaxLength int
}

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"fast-all-MiniLM-L6-v2":                  fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
}

// FastEmbedProvider runs a local ONNX model. The ONNX session is shared;
// Close takes the write lock so it never races an in-flight batch.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	batchSize int
	mu        sync.RWMutex
}

// NewFastEmbedProvider loads the model, fetching the ONNX runtime first if
// it is not installed.
func NewFastEmbedProvider(ctx context.Context, cfg FastEmbedConfig, logger *logging.Logger) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultFastEmbedModel
	}
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, cfg.Model)
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 256
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultModelCacheDir()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if _, err := EnsureONNXRuntime(ctx, logger); err != nil {
		return nil, err
	}

	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed model %s: %w", cfg.Model, err)
	}

	logger.Info(ctx, "fastembed model loaded",
		zap.String("model", cfg.Model),
		zap.String("cache_dir", cfg.CacheDir),
		zap.Int("max_length", cfg.MaxLength),
	)
	dim, _ := ModelDimension(cfg.Model)
	return &FastEmbedProvider{
		model:     flag,
		modelName: cfg.Model,
		dimension: dim,
		batchSize: 256,
	}, nil
}

func defaultModelCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "docflow", "models")
	}
	return filepath.Join(".", "local_cache")
}

// EmbedDocuments embeds texts without any instruction prefix.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.model == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}
	vecs, err := p.model.Embed(texts, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vecs, nil
}

// Dimension returns the model's vector length.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases the ONNX session. Safe to call twice.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
