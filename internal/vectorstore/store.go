// Package vectorstore persists embedded document chunks.
//
// A Store owns a single collection of (document_id, chunk_index, chunk_text,
// embedding) records. Three backends implement it: Qdrant over gRPC for
// production, SQLite for embedded and local runs, and chromem-go for an
// in-process store.
//
// Inserts are append-only. Re-ingesting a document adds a second set of
// records rather than replacing the first.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	// MaxDocumentIDLen bounds document_id, in characters.
	MaxDocumentIDLen = 256

	// MaxChunkBytes bounds chunk_text, in bytes.
	MaxChunkBytes = 65535

	// MetricL2 is the distance reported for backends indexed on Euclidean distance.
	MetricL2 = "l2"
)

var (
	// ErrCollectionNotFound is returned by reads against a collection that has
	// never been provisioned.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput is wrapped by the PreconditionError for an Insert with
	// no chunks or no embeddings.
	ErrEmptyInput = errors.New("nothing to insert")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern keeps collection names safe as SQL identifiers and
// chromem directory names.
var collectionNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,63}$`)

// Store is the persistence boundary of the ingestion pipeline.
type Store interface {
	// EnsureSchema creates the collection and its index if absent. It is
	// idempotent and fails with *SchemaMismatchError when the collection
	// exists with another dimension.
	EnsureSchema(ctx context.Context, dimension int) error

	// Insert writes one record per chunk with chunk_index 0..n-1. All records
	// are durable when it returns, or none are.
	Insert(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) (*StoreReceipt, error)

	// QueryByDocument returns the records of documentID ordered by
	// chunk_index, then insertion order.
	QueryByDocument(ctx context.Context, documentID string) ([]StoredRecord, error)

	Describe(ctx context.Context) (*CollectionInfo, error)

	// Backend names the implementation ("sqlite", "qdrant", "chromem").
	Backend() string

	Close() error
}

// HealthChecker is implemented by stores backed by a remote service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// StoredRecord is one persisted chunk.
type StoredRecord struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkText  string    `json:"chunk_text"`
	Embedding  []float32 `json:"embedding"`
}

// StoreReceipt acknowledges a successful Insert.
type StoreReceipt struct {
	DocumentID string `json:"document_id"`
	Inserted   int    `json:"inserted"`
	Collection string `json:"collection"`
	Backend    string `json:"backend"`
}

// CollectionInfo describes a provisioned collection.
type CollectionInfo struct {
	Name        string `json:"name"`
	Backend     string `json:"backend"`
	Dimension   int    `json:"dimension"`
	Metric      string `json:"metric"`
	RecordCount int    `json:"record_count"`
}

// ValidateCollectionName checks name against ^[a-z_][a-z0-9_]{0,63}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match %s, got %q",
			ErrInvalidCollectionName, collectionNamePattern.String(), name)
	}
	return nil
}

// validateInsert checks every Insert precondition before any write happens.
// It returns the common embedding dimension.
func validateInsert(documentID string, chunks []string, embeddings [][]float32) (int, error) {
	if documentID == "" {
		return 0, &PreconditionError{Reason: "document_id is empty"}
	}
	if n := utf8.RuneCountInString(documentID); n > MaxDocumentIDLen {
		return 0, &PreconditionError{Reason: fmt.Sprintf("document_id has %d characters, limit is %d", n, MaxDocumentIDLen)}
	}
	if len(chunks) == 0 || len(embeddings) == 0 {
		return 0, &PreconditionError{
			Reason: fmt.Sprintf("%s: %d chunks, %d embeddings", ErrEmptyInput, len(chunks), len(embeddings)),
			Err:    ErrEmptyInput,
		}
	}
	if len(chunks) != len(embeddings) {
		return 0, &PreconditionError{Reason: fmt.Sprintf("chunk/embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings))}
	}

	dim := len(embeddings[0])
	if dim == 0 {
		return 0, &PreconditionError{Reason: "embedding 0 is empty"}
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return 0, &PreconditionError{Reason: fmt.Sprintf("embedding %d has dimension %d, expected %d", i, len(e), dim)}
		}
	}
	for i, c := range chunks {
		if len(c) > MaxChunkBytes {
			return 0, &PreconditionError{Reason: fmt.Sprintf("chunk %d is %d bytes, limit is %d", i, len(c), MaxChunkBytes)}
		}
	}
	return dim, nil
}
