// Package http exposes the ingestion trigger over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/api/serviceerror"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/fyrsmithlabs/docflow/internal/workflows"
)

// Runner starts runs and reports on them. *workflows.Trigger implements it.
type Runner interface {
	Start(ctx context.Context, documentID, sourceURL string) (workflows.RunHandle, error)
	State(ctx context.Context, h workflows.RunHandle) (*workflows.RunState, error)
	Await(ctx context.Context, h workflows.RunHandle) (*workflows.RunSummary, error)
}

// Server provides HTTP endpoints for docflow.
type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *logging.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RateLimit is requests per second per client IP on /api/v1. Zero
	// disables limiting.
	RateLimit float64
	RateBurst int
	// ResultTimeout bounds the fetch of a completed run's summary.
	ResultTimeout time.Duration
	// HealthChecks are run by GET /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
	// HealthTimeout bounds each health check.
	HealthTimeout time.Duration
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// ConfigFrom maps the server config section.
func ConfigFrom(c config.ServerConfig) *Config {
	return &Config{
		Host:      c.Host,
		Port:      c.Port,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
	}
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *logging.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = 5 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	if s.config.RateLimit > 0 {
		v1.Use(s.rateLimiter())
	}
	v1.POST("/ingest", s.handleIngest)
	v1.GET("/runs/:id", s.handleRun)
}

// rateLimiter limits each client IP with a token bucket.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	burst := s.config.RateBurst
	if burst <= 0 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.config.RateLimit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			s.logger.Warn(c.Request().Context(), "rate limited", zap.String("client", identifier))
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// IngestRequest is the request body for POST /api/v1/ingest.
type IngestRequest struct {
	DocumentID string `json:"document_id"`
	SourceURL  string `json:"source_url"`
}

// IngestResponse is returned with 202 Accepted.
type IngestResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	StatusURL  string `json:"status_url"`
}

// RunResponse is the response body for GET /api/v1/runs/:id.
type RunResponse struct {
	WorkflowID string                `json:"workflow_id"`
	RunID      string                `json:"run_id,omitempty"`
	State      workflows.RunStatus   `json:"state"`
	Stage      workflows.Stage       `json:"stage,omitempty"`
	Error      string                `json:"error,omitempty"`
	Summary    *workflows.RunSummary `json:"summary,omitempty"`
}

// HealthResponse is the response body for GET /health. Checks maps each
// dependency to "ok" or its error.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth runs every health check and answers 503 when any fails.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	resp := HealthResponse{Status: "ok"}
	code := http.StatusOK

	if len(s.config.HealthChecks) > 0 {
		resp.Checks = make(map[string]string, len(s.config.HealthChecks))
	}
	for name, check := range s.config.HealthChecks {
		checkCtx, cancel := context.WithTimeout(ctx, s.config.HealthTimeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	return c.JSON(code, resp)
}

func (s *Server) handleIngest(c echo.Context) error {
	ctx := c.Request().Context()

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	input := workflows.IngestionInput{DocumentID: req.DocumentID, SourceURL: req.SourceURL}
	if err := input.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h, err := s.runner.Start(ctx, req.DocumentID, req.SourceURL)
	if err != nil {
		s.logger.Error(logging.WithDocumentID(ctx, req.DocumentID), "failed to start run",
			logging.URL("source_url", req.SourceURL), zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to start run")
	}

	return c.JSON(http.StatusAccepted, IngestResponse{
		WorkflowID: h.WorkflowID,
		RunID:      h.RunID,
		StatusURL:  "/api/v1/runs/" + h.WorkflowID + "?run_id=" + h.RunID,
	})
}

// handleRun reports a run's state. Completed runs include their summary.
func (s *Server) handleRun(c echo.Context) error {
	ctx := c.Request().Context()
	h := workflows.RunHandle{WorkflowID: c.Param("id"), RunID: c.QueryParam("run_id")}

	st, err := s.runner.State(ctx, h)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		s.logger.Error(ctx, "failed to query run", zap.String("workflow_id", h.WorkflowID), zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to query run")
	}

	resp := RunResponse{
		WorkflowID: h.WorkflowID,
		RunID:      h.RunID,
		State:      st.State,
		Stage:      st.Stage,
		Error:      st.Error,
	}
	if st.State == workflows.StatusCompleted {
		rctx, cancel := context.WithTimeout(ctx, s.config.ResultTimeout)
		defer cancel()
		summary, err := s.runner.Await(rctx, h)
		if err != nil {
			s.logger.Warn(ctx, "completed run has no summary", zap.String("workflow_id", h.WorkflowID), zap.Error(err))
		} else {
			resp.Summary = summary
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Handler returns the underlying handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
