package embeddings

import (
	"context"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
}

// OpenAIProvider embeds through langchaingo's OpenAI client. It also works
// against local servers that speak the same API (vLLM, Ollama, LM Studio).
type OpenAIProvider struct {
	embedder  lcembeddings.Embedder
	model     string
	dimension int
	metrics   *Metrics
}

// NewOpenAIProvider creates the client. Local servers usually ignore the
// key, so an empty one is sent as "none".
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai base URL and model required", ErrInvalidConfig)
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	emb, err := lcembeddings.NewEmbedder(llm, lcembeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIProvider{
		embedder:  emb,
		model:     cfg.Model,
		dimension: dimensionFor(cfg.Model, cfg.Dimension),
		metrics:   defaultMetrics(),
	}, nil
}

// EmbedDocuments embeds texts in one request per langchaingo batch.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "openai", time.Since(start), len(texts), err)
	}()

	vecs, err = p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vecs, nil
}

// Dimension returns the configured or inferred vector length.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *OpenAIProvider) Close() error {
	return nil
}
