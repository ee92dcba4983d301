package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/docflow/internal/embeddings"
	"github.com/fyrsmithlabs/docflow/internal/fetcher"
	"github.com/fyrsmithlabs/docflow/internal/parser"
	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
)

// ApplicationError types set by activities. NonRetryableErrorTypes lists
// the ones that never retry.
const (
	ErrTypeUnsupportedFormat = "UnsupportedFormatError"
	ErrTypeParse             = "ParseError"
	ErrTypePrecondition      = "PreconditionError"
	ErrTypeSchemaMismatch    = "SchemaMismatchError"
	ErrTypeTransientParse    = "TransientParseError"
	ErrTypeFetch             = "FetchError"
	ErrTypeEmbedding         = "EmbeddingError"
	ErrTypeInvalidInput      = "InvalidInputError"
	ErrTypePayloadTooLarge   = "PayloadTooLargeError"
	ErrTypeUnclassified      = "UnclassifiedError"
)

// NonRetryableErrorTypes lists the ApplicationError types the retry policy
// never retries.
var NonRetryableErrorTypes = []string{
	ErrTypeUnsupportedFormat,
	ErrTypeParse,
	ErrTypePrecondition,
	ErrTypeSchemaMismatch,
	ErrTypePayloadTooLarge,
}

// Error severity levels for workflow errors
type ErrorSeverity string

const (
	// ErrorSeverityCritical means the run failed and will not be retried.
	ErrorSeverityCritical ErrorSeverity = "critical"
	// ErrorSeverityHigh means the run failed after exhausting retries on a
	// transient error; retrying the whole run may succeed.
	ErrorSeverityHigh ErrorSeverity = "high"
)

// WorkflowError is returned by Trigger.Await for a failed run.
type WorkflowError struct {
	Operation string // stage that failed, e.g. "parse"
	Severity  ErrorSeverity
	Err       error
}

// Error reports the ApplicationError message when one is in the chain,
// without Temporal's type and retryable suffix.
func (e *WorkflowError) Error() string {
	var appErr *temporal.ApplicationError
	if errors.As(e.Err, &appErr) {
		return fmt.Sprintf("%s failed: %s", e.Operation, appErr.Message())
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to reach the ApplicationError.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// ErrorType returns the ApplicationError type in err's chain, or "".
func ErrorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return ""
}

// classify converts a component error into an ApplicationError typed by
// the error taxonomy, keeping the original message. Context errors pass
// through so Temporal records a timeout or cancellation rather than an
// application failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		unsupported *parser.UnsupportedFormatError
		parseErr    *parser.ParseError
		fetchErr    *fetcher.FetchError
		embedErr    *embeddings.EmbeddingError
		precond     *vectorstore.PreconditionError
		mismatch    *vectorstore.SchemaMismatchError
		tooLarge    *PayloadTooLargeError
	)

	var errType string
	switch {
	case errors.As(err, &unsupported):
		errType = ErrTypeUnsupportedFormat
	case errors.As(err, &parseErr):
		errType = ErrTypeParse
		if parseErr.Transient {
			errType = ErrTypeTransientParse
		}
	case errors.As(err, &precond):
		errType = ErrTypePrecondition
	case errors.As(err, &mismatch):
		errType = ErrTypeSchemaMismatch
	case errors.As(err, &tooLarge):
		errType = ErrTypePayloadTooLarge
	case errors.As(err, &fetchErr):
		errType = ErrTypeFetch
	case errors.As(err, &embedErr):
		errType = ErrTypeEmbedding
	default:
		errType = ErrTypeUnclassified
	}
	return temporal.NewApplicationError(err.Error(), errType)
}
