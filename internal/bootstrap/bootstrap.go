// Package bootstrap builds the process-level pieces shared by the docflow
// binaries: configuration, logging, telemetry, the Temporal client, and the
// pipeline components.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/embeddings"
	"github.com/fyrsmithlabs/docflow/internal/fetcher"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/fyrsmithlabs/docflow/internal/parser"
	"github.com/fyrsmithlabs/docflow/internal/telemetry"
	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
	"github.com/fyrsmithlabs/docflow/internal/workflows"
)

// Runtime is what every binary needs before it does anything useful.
type Runtime struct {
	Config    *config.Config
	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry
}

// Setup loads configuration from configPath (empty for the default search)
// and starts logging and telemetry.
func Setup(ctx context.Context, configPath, version string) (*Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg, err := logging.ConfigFrom(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("invalid log configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	return &Runtime{Config: cfg, Logger: logger, Telemetry: tel}, nil
}

// Close flushes telemetry and the logger.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.Telemetry.Shutdown(ctx)
	return errors.Join(err, r.Logger.Sync())
}

// DialTemporal connects to the configured Temporal frontend. Client logs go
// through the runtime logger.
func (r *Runtime) DialTemporal() (client.Client, error) {
	t := r.Config.Temporal
	c, err := client.Dial(client.Options{
		HostPort:  t.HostPort,
		Namespace: t.Namespace,
		Logger:    logging.NewTemporalAdapter(r.Logger.Named("temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client for %s: %w", t.HostPort, err)
	}
	return c, nil
}

// NewTrigger wraps c with the configured task queue and pipeline options.
func (r *Runtime) NewTrigger(c client.Client) *workflows.Trigger {
	return workflows.NewTrigger(c, r.Config.Temporal.TaskQueue, workflows.OptionsFrom(r.Config.Pipeline), r.Logger)
}

// NewStore opens the configured vector store.
func (r *Runtime) NewStore() (vectorstore.Store, error) {
	return vectorstore.NewStore(r.Config.Store, r.Logger)
}

// Components are the activity dependencies. The worker owns them and must
// call Close on shutdown.
type Components struct {
	Fetcher  *fetcher.Fetcher
	Parser   *parser.Parser
	Embedder *embeddings.Embedder
	Store    vectorstore.Store

	// MaxPayloadBytes bounds activity inputs and results.
	MaxPayloadBytes int
}

// NewComponents constructs the fetcher, parser, embedder, and store.
// Construction failures release whatever was already built.
func (r *Runtime) NewComponents(ctx context.Context) (*Components, error) {
	cfg := r.Config

	provider, err := embeddings.NewProvider(ctx, cfg.Embeddings, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	embedder := embeddings.NewEmbedder(provider, embeddings.EmbedderConfig{
		BatchSize:   cfg.Embeddings.BatchSize,
		Concurrency: cfg.Embeddings.Concurrency,
		Name:        cfg.Embeddings.Provider,
	}, r.Logger)

	store, err := r.NewStore()
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	return &Components{
		Fetcher: fetcher.New(fetcher.Config{
			Timeout:   cfg.Fetcher.Timeout,
			MaxBytes:  cfg.Fetcher.MaxBytes.Int64(),
			UserAgent: cfg.Fetcher.UserAgent,
		}, r.Logger),
		Parser:          parser.New(parser.Config{}, r.Logger),
		Embedder:        embedder,
		Store:           store,
		MaxPayloadBytes: int(cfg.Pipeline.MaxPayloadBytes.Int64()),
	}, nil
}

// Activities wires the components into workflow activities.
func (c *Components) Activities(logger *logging.Logger) (*workflows.Activities, error) {
	return workflows.NewActivities(c.Fetcher, c.Parser, c.Embedder, c.Store, logger,
		workflows.WithMaxPayloadBytes(c.MaxPayloadBytes))
}

// Close releases the embedding provider and the store.
func (c *Components) Close() error {
	return errors.Join(c.Embedder.Close(), c.Store.Close())
}
