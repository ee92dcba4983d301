// Package config provides configuration loading for docflow.
//
// Values come from struct defaults, an optional YAML or TOML file, and
// DOCFLOW_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete docflow configuration.
type Config struct {
	Temporal      TemporalConfig      `koanf:"temporal"`
	Worker        WorkerConfig        `koanf:"worker"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Fetcher       FetcherConfig       `koanf:"fetcher"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Store         StoreConfig         `koanf:"store"`
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// TemporalConfig holds the Temporal client connection settings.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// WorkerConfig holds Temporal worker tuning.
type WorkerConfig struct {
	MaxConcurrentActivities int `koanf:"max_concurrent_activities"`
}

// PipelineConfig holds per-stage timeouts and the stage retry policy.
type PipelineConfig struct {
	FetchTimeout   time.Duration `koanf:"fetch_timeout"`
	ParseTimeout   time.Duration `koanf:"parse_timeout"`
	EmbedTimeout   time.Duration `koanf:"embed_timeout"`
	StoreTimeout   time.Duration `koanf:"store_timeout"`
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`

	// MaxPayloadBytes is the largest activity payload a run may put in
	// workflow history. Keep it at or under the server's blob size limit.
	MaxPayloadBytes ByteSize `koanf:"max_payload_bytes"`
}

// FetcherConfig configures the document fetcher.
type FetcherConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	MaxBytes  ByteSize      `koanf:"max_bytes"`
	UserAgent string        `koanf:"user_agent"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider    string          `koanf:"provider"` // fastembed, tei, openai
	BatchSize   int             `koanf:"batch_size"`
	Concurrency int             `koanf:"concurrency"`
	FastEmbed   FastEmbedConfig `koanf:"fastembed"`
	TEI         RemoteConfig    `koanf:"tei"`
	OpenAI      RemoteConfig    `koanf:"openai"`
}

// FastEmbedConfig configures the local ONNX model.
type FastEmbedConfig struct {
	Model     string `koanf:"model"`
	CacheDir  string `koanf:"cache_dir"`
	MaxLength int    `koanf:"max_length"`
}

// RemoteConfig configures an HTTP embedding endpoint.
type RemoteConfig struct {
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"` // 0 = infer from model name
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend    string        `koanf:"backend"` // sqlite, qdrant, chromem
	Collection string        `koanf:"collection"`
	SQLite     SQLiteConfig  `koanf:"sqlite"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
	Chromem    ChromemConfig `koanf:"chromem"`
}

// SQLiteConfig configures the embedded SQLite store.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// QdrantConfig configures the Qdrant gRPC connection.
type QdrantConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	UseTLS         bool          `koanf:"use_tls"`
	APIKey         Secret        `koanf:"api_key"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	RetryAttempts  int           `koanf:"retry_attempts"`
}

// ChromemConfig configures the in-process chromem store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// ServerConfig holds trigger API settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       float64       `koanf:"rate_limit"` // requests per second per client IP
	RateBurst       int           `koanf:"rate_burst"`
}

// LogConfig holds the logging knobs exposed through configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
}

// Store backends.
const (
	BackendSQLite  = "sqlite"
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// Embedding providers.
const (
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"
	ProviderOpenAI    = "openai"
)

// DefaultTaskQueue is the Temporal task queue ingestion runs are scheduled on.
const DefaultTaskQueue = "doc-task-queue"

// DefaultCollection is the vector collection chunks are written to.
const DefaultCollection = "doc_chunks"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Default returns a Config populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values.
func applyDefaults(cfg *Config) {
	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = DefaultTaskQueue
	}

	if cfg.Worker.MaxConcurrentActivities == 0 {
		cfg.Worker.MaxConcurrentActivities = 8
	}

	p := &cfg.Pipeline
	if p.FetchTimeout == 0 {
		p.FetchTimeout = 60 * time.Second
	}
	if p.ParseTimeout == 0 {
		p.ParseTimeout = 60 * time.Second
	}
	if p.EmbedTimeout == 0 {
		p.EmbedTimeout = 120 * time.Second
	}
	if p.StoreTimeout == 0 {
		p.StoreTimeout = 120 * time.Second
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = time.Second
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.MaxPayloadBytes == 0 {
		p.MaxPayloadBytes = 2 << 20
	}

	if cfg.Fetcher.Timeout == 0 {
		cfg.Fetcher.Timeout = 45 * time.Second
	}
	if cfg.Fetcher.MaxBytes == 0 {
		cfg.Fetcher.MaxBytes = 1 << 20
	}
	if cfg.Fetcher.UserAgent == "" {
		cfg.Fetcher.UserAgent = "docflow/1.0"
	}

	e := &cfg.Embeddings
	if e.Provider == "" {
		e.Provider = ProviderFastEmbed
	}
	if e.BatchSize == 0 {
		e.BatchSize = 64
	}
	if e.Concurrency == 0 {
		e.Concurrency = 2
	}
	if e.FastEmbed.Model == "" {
		e.FastEmbed.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if e.FastEmbed.MaxLength == 0 {
		e.FastEmbed.MaxLength = 256
	}
	if e.TEI.BaseURL == "" {
		e.TEI.BaseURL = "http://localhost:8080"
	}
	if e.TEI.Model == "" {
		e.TEI.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if e.OpenAI.BaseURL == "" {
		e.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if e.OpenAI.Model == "" {
		e.OpenAI.Model = "text-embedding-3-small"
	}

	s := &cfg.Store
	if s.Backend == "" {
		s.Backend = BackendSQLite
	}
	if s.Collection == "" {
		s.Collection = DefaultCollection
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = "docflow.db"
	}
	if s.Qdrant.Host == "" {
		s.Qdrant.Host = "localhost"
	}
	if s.Qdrant.Port == 0 {
		s.Qdrant.Port = 6334
	}
	if s.Qdrant.RequestTimeout == 0 {
		s.Qdrant.RequestTimeout = 30 * time.Second
	}
	if s.Qdrant.RetryAttempts == 0 {
		s.Qdrant.RetryAttempts = 3
	}
	if s.Chromem.Path == "" {
		s.Chromem.Path = "docflow-chromem"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 1
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 10
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "docflow"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Temporal.HostPort == "" {
		return fmt.Errorf("%w: temporal.host_port is required", ErrInvalidConfig)
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("%w: temporal.task_queue is required", ErrInvalidConfig)
	}
	if c.Worker.MaxConcurrentActivities < 1 {
		return fmt.Errorf("%w: worker.max_concurrent_activities must be >= 1", ErrInvalidConfig)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.Fetcher.MaxBytes <= 0 {
		return fmt.Errorf("%w: fetcher.max_bytes must be > 0", ErrInvalidConfig)
	}
	if err := c.Embeddings.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("%w: server rate limits cannot be negative", ErrInvalidConfig)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("%w: log.format must be 'json' or 'console', got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Validate checks stage timeouts and retry bounds.
func (p PipelineConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"fetch_timeout": p.FetchTimeout,
		"parse_timeout": p.ParseTimeout,
		"embed_timeout": p.EmbedTimeout,
		"store_timeout": p.StoreTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: pipeline.%s must be > 0", ErrInvalidConfig, name)
		}
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: pipeline.max_attempts must be >= 1", ErrInvalidConfig)
	}
	if p.MaxBackoff < p.InitialBackoff {
		return fmt.Errorf("%w: pipeline.max_backoff must be >= initial_backoff", ErrInvalidConfig)
	}
	if p.MaxPayloadBytes <= 0 {
		return fmt.Errorf("%w: pipeline.max_payload_bytes must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the embedding provider settings.
func (e EmbeddingsConfig) Validate() error {
	if e.BatchSize < 1 || e.Concurrency < 1 {
		return fmt.Errorf("%w: embeddings batch_size and concurrency must be >= 1", ErrInvalidConfig)
	}
	switch e.Provider {
	case ProviderFastEmbed:
		if e.FastEmbed.Model == "" {
			return fmt.Errorf("%w: embeddings.fastembed.model is required", ErrInvalidConfig)
		}
	case ProviderTEI:
		return validateBaseURL("embeddings.tei.base_url", e.TEI.BaseURL)
	case ProviderOpenAI:
		if e.OpenAI.Model == "" {
			return fmt.Errorf("%w: embeddings.openai.model is required", ErrInvalidConfig)
		}
		return validateBaseURL("embeddings.openai.base_url", e.OpenAI.BaseURL)
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, e.Provider)
	}
	return nil
}

// Validate checks the store backend settings.
func (s StoreConfig) Validate() error {
	if s.Collection == "" {
		return fmt.Errorf("%w: store.collection is required", ErrInvalidConfig)
	}
	switch s.Backend {
	case BackendSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("%w: store.sqlite.path is required", ErrInvalidConfig)
		}
	case BackendQdrant:
		if s.Qdrant.Host == "" {
			return fmt.Errorf("%w: store.qdrant.host is required", ErrInvalidConfig)
		}
		if s.Qdrant.Port <= 0 || s.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: invalid qdrant port %d", ErrInvalidConfig, s.Qdrant.Port)
		}
	case BackendChromem:
		if s.Chromem.Path == "" {
			return fmt.Errorf("%w: store.chromem.path is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, s.Backend)
	}
	return nil
}

func validateBaseURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute URL, got %q", ErrInvalidConfig, field, raw)
	}
	return nil
}
