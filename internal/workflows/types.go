// Package workflows runs document ingestion as a durable Temporal workflow.
//
// IngestionWorkflow sequences four activities (fetch, parse, embed, store),
// each with its own schedule-to-close timeout and a bounded exponential
// retry policy. Activities classify component errors into ApplicationError
// types so the policy can refuse to retry content and precondition failures.
package workflows

import (
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
)

const (
	// TaskQueue is the queue workers poll and triggers start runs on.
	TaskQueue = config.DefaultTaskQueue

	// QueryRunState names the query handler that returns RunState.
	QueryRunState = "run_state"

	// WorkflowIDPrefix prefixes the uuid in every workflow id.
	WorkflowIDPrefix = "workflow-"
)

// Stage is one activity of the pipeline.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageEmbed Stage = "embed"
	StageStore Stage = "store"
)

// RunStatus is the lifecycle position of a run.
type RunStatus string

const (
	StatusCreated   RunStatus = "created"
	StatusFetching  RunStatus = "fetching"
	StatusParsing   RunStatus = "parsing"
	StatusEmbedding RunStatus = "embedding"
	StatusStoring   RunStatus = "storing"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// IngestionInput starts a run. Options may be nil for defaults.
type IngestionInput struct {
	DocumentID string           `json:"document_id"`
	SourceURL  string           `json:"source_url"`
	Options    *PipelineOptions `json:"options,omitempty"`
}

// Validate checks the input before any activity is scheduled.
func (in IngestionInput) Validate() error {
	if in.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if n := utf8.RuneCountInString(in.DocumentID); n > vectorstore.MaxDocumentIDLen {
		return fmt.Errorf("document_id has %d characters, limit is %d", n, vectorstore.MaxDocumentIDLen)
	}
	u, err := url.Parse(in.SourceURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("source_url must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source_url scheme %q is not supported", u.Scheme)
	}
	return nil
}

// RunSummary is the result of a completed run.
type RunSummary struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	Collection string `json:"collection"`
	Backend    string `json:"backend"`
	Message    string `json:"message"`
}

// RunState is returned by the run_state query.
type RunState struct {
	State RunStatus `json:"state"`
	Stage Stage     `json:"stage,omitempty"`
	Error string    `json:"error,omitempty"`
}

// StageTimeouts are schedule-to-close timeouts per activity.
type StageTimeouts struct {
	Fetch time.Duration `json:"fetch"`
	Parse time.Duration `json:"parse"`
	Embed time.Duration `json:"embed"`
	Store time.Duration `json:"store"`
}

// DefaultStageTimeouts returns 60s/60s/120s/120s.
func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Fetch: 60 * time.Second,
		Parse: 60 * time.Second,
		Embed: 120 * time.Second,
		Store: 120 * time.Second,
	}
}

func (t StageTimeouts) forStage(s Stage) time.Duration {
	d := DefaultStageTimeouts()
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	switch s {
	case StageFetch:
		return pick(t.Fetch, d.Fetch)
	case StageParse:
		return pick(t.Parse, d.Parse)
	case StageEmbed:
		return pick(t.Embed, d.Embed)
	default:
		return pick(t.Store, d.Store)
	}
}

// RetryOptions tune the activity retry policy. Zero fields take defaults.
type RetryOptions struct {
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
	MaxAttempts     int32         `json:"max_attempts"`
}

// PipelineOptions carry worker-side configuration into a run.
type PipelineOptions struct {
	Timeouts StageTimeouts `json:"timeouts"`
	Retry    RetryOptions  `json:"retry"`
}

// OptionsFrom maps the pipeline config section onto PipelineOptions.
func OptionsFrom(cfg config.PipelineConfig) *PipelineOptions {
	return &PipelineOptions{
		Timeouts: StageTimeouts{
			Fetch: cfg.FetchTimeout,
			Parse: cfg.ParseTimeout,
			Embed: cfg.EmbedTimeout,
			Store: cfg.StoreTimeout,
		},
		Retry: RetryOptions{
			InitialInterval: cfg.InitialBackoff,
			MaxInterval:     cfg.MaxBackoff,
			MaxAttempts:     int32(cfg.MaxAttempts),
		},
	}
}

// DefaultRetryPolicy is initial 1s, coefficient 2, max interval 30s,
// 3 attempts, with the non-retryable taxonomy types.
func DefaultRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        30 * time.Second,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: append([]string(nil), NonRetryableErrorTypes...),
	}
}

func (o *PipelineOptions) retryPolicy() *temporal.RetryPolicy {
	p := DefaultRetryPolicy()
	if o == nil {
		return p
	}
	if o.Retry.InitialInterval > 0 {
		p.InitialInterval = o.Retry.InitialInterval
	}
	if o.Retry.MaxInterval > 0 {
		p.MaximumInterval = o.Retry.MaxInterval
	}
	if o.Retry.MaxAttempts > 0 {
		p.MaximumAttempts = o.Retry.MaxAttempts
	}
	return p
}

func (o *PipelineOptions) timeout(s Stage) time.Duration {
	if o == nil {
		return DefaultStageTimeouts().forStage(s)
	}
	return o.Timeouts.forStage(s)
}

// SummaryMessage formats the completion line of a run.
func SummaryMessage(documentID string, chunks int, backend string) string {
	return fmt.Sprintf("File ID: %s, processed %d chunks with embeddings and stored in %s.", documentID, chunks, backend)
}
