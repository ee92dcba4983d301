package embeddings

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider could not produce vectors.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrCountMismatch means a provider returned a different number of
	// vectors than texts it was given.
	ErrCountMismatch = errors.New("embedding count mismatch")

	// ErrDimensionMismatch means a vector had the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// EmbeddingError wraps any failure to embed a batch. Embedding is a pure
// function of its input, so these are safe to retry.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding with %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
