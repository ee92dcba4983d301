package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config configures the text-embeddings-inference client.
type Config struct {
	BaseURL string
	Model   string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Dimension overrides the model table. 0 infers from Model.
	Dimension int

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// Service calls a HuggingFace text-embeddings-inference server.
type Service struct {
	config    Config
	client    *http.Client
	dimension int
	metrics   *Metrics
}

// NewService creates a TEI client. It does not contact the server.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Service{
		config:    cfg,
		client:    client,
		dimension: dimensionFor(cfg.Model, cfg.Dimension),
		metrics:   defaultMetrics(),
	}, nil
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// EmbedDocuments posts texts to /embed with server-side truncation.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "tei", time.Since(start), len(texts), err)
	}()

	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vecs, nil
}

// Dimension returns the configured or inferred vector length.
func (s *Service) Dimension() int {
	return s.dimension
}

// Close is a no-op; the HTTP client holds no exclusive resources.
func (s *Service) Close() error {
	return nil
}
