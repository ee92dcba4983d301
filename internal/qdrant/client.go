// Package qdrant wraps the official Qdrant gRPC client with the operations the
// document store needs: collection provisioning, keyword payload indexes,
// durable upserts, and filtered count/scroll.
package qdrant

import (
	"context"
)

// Client is the subset of Qdrant used by vectorstore.QdrantStore.
type Client interface {
	// Collection operations
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	CollectionVectorSize(ctx context.Context, name string) (uint64, error)
	CollectionPointCount(ctx context.Context, name string) (uint64, error)
	CreateKeywordIndex(ctx context.Context, collection, field string) error

	// Point operations
	Upsert(ctx context.Context, collection string, points []*Point) error
	CountByField(ctx context.Context, collection, field, value string) (uint64, error)
	ScrollByField(ctx context.Context, collection, field, value string, limit uint32) ([]*Point, error)

	Health(ctx context.Context) error
	Close() error
}

// Point represents a vector point in Qdrant.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}
