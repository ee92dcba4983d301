// Docflow-worker runs the ingestion workflow and its activities.
//
// It polls the configured task queue (doc-task-queue by default) until
// SIGINT or SIGTERM, then stops the worker and releases the embedding model
// and the vector store.
//
// Usage:
//
//	docflow-worker --config /etc/docflow/config.yaml
//	DOCFLOW_STORE_BACKEND=qdrant docflow-worker
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docflow/internal/bootstrap"
	"github.com/fyrsmithlabs/docflow/internal/workflows"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := bootstrap.Setup(ctx, configPath, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = rt.Close(shutdownCtx)
	}()
	logger := rt.Logger
	cfg := rt.Config

	logger.Info(ctx, "docflow worker starting",
		zap.String("version", version),
		zap.String("temporal_host", cfg.Temporal.HostPort),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
	)

	comps, err := rt.NewComponents(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn(context.Background(), "releasing components", zap.Error(err))
		}
	}()

	acts, err := comps.Activities(logger)
	if err != nil {
		return err
	}

	c, err := rt.DialTemporal()
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Worker.MaxConcurrentActivities,
	})
	w.RegisterWorkflow(workflows.IngestionWorkflow)
	w.RegisterActivity(acts)

	if err := w.Start(); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	logger.Info(ctx, "worker polling", zap.String("task_queue", cfg.Temporal.TaskQueue))

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received")
	w.Stop()
	logger.Info(context.Background(), "worker stopped")
	return nil
}
