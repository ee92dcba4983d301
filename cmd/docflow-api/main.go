// Docflow-api serves the HTTP trigger API: POST /api/v1/ingest starts a
// run, GET /api/v1/runs/:id reports on it.
//
// Usage:
//
//	docflow-api --config /etc/docflow/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docflow/internal/bootstrap"
	"github.com/fyrsmithlabs/docflow/internal/config"
	httpserver "github.com/fyrsmithlabs/docflow/internal/http"
	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
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
	cfg := rt.Config
	logger := rt.Logger

	shutdown := func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer c()
		_ = rt.Close(shutdownCtx)
	}
	defer shutdown()

	c, err := rt.DialTemporal()
	if err != nil {
		return err
	}
	defer c.Close()

	serverCfg := httpserver.ConfigFrom(cfg.Server)
	serverCfg.HealthChecks = map[string]httpserver.HealthCheck{
		"temporal": func(ctx context.Context) error {
			_, err := c.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		},
	}
	// Embedded stores live in the worker process; only a remote one is
	// reachable from here.
	if cfg.Store.Backend == config.BackendQdrant {
		store, err := rt.NewStore()
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer store.Close()
		if hc, ok := store.(vectorstore.HealthChecker); ok {
			serverCfg.HealthChecks["store"] = hc.Health
		}
	}

	server, err := httpserver.NewServer(rt.NewTrigger(c), logger, serverCfg)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown", zap.Error(err))
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
