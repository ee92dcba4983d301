package vectorstore_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/docflow/internal/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeQdrant is an in-memory qdrant.Client.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	upsertErr   error
	healthErr   error
	closed      bool
}

type fakeCollection struct {
	size    uint64
	indexes map[string]bool
	points  []*qdrant.Point
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]*fakeCollection{}}
}

func (f *fakeQdrant) get(name string) (*fakeCollection, error) {
	c, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", qdrant.ErrCollectionNotFound, name)
	}
	return c, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, name string, vectorSize uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; ok {
		return status.Error(codes.AlreadyExists, "collection exists")
	}
	f.collections[name] = &fakeCollection{size: vectorSize, indexes: map[string]bool{}}
	return nil
}

func (f *fakeQdrant) DeleteCollection(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	return nil
}

func (f *fakeQdrant) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeQdrant) CollectionVectorSize(_ context.Context, name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(name)
	if err != nil {
		return 0, err
	}
	return c.size, nil
}

func (f *fakeQdrant) CollectionPointCount(_ context.Context, name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(name)
	if err != nil {
		return 0, err
	}
	return uint64(len(c.points)), nil
}

func (f *fakeQdrant) CreateKeywordIndex(_ context.Context, collection, field string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(collection)
	if err != nil {
		return err
	}
	c.indexes[field] = true
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, collection string, points []*qdrant.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	c, err := f.get(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if uint64(len(p.Vector)) != c.size {
			return status.Errorf(codes.InvalidArgument, "vector size %d, expected %d", len(p.Vector), c.size)
		}
	}
	c.points = append(c.points, points...)
	return nil
}

func (f *fakeQdrant) matching(collection, field, value string) ([]*qdrant.Point, error) {
	c, err := f.get(collection)
	if err != nil {
		return nil, err
	}
	var out []*qdrant.Point
	// Scroll order is by point id, not insertion order.
	for i := len(c.points) - 1; i >= 0; i-- {
		if v, _ := c.points[i].Payload[field].(string); v == value {
			out = append(out, c.points[i])
		}
	}
	return out, nil
}

func (f *fakeQdrant) CountByField(_ context.Context, collection, field, value string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pts, err := f.matching(collection, field, value)
	return uint64(len(pts)), err
}

func (f *fakeQdrant) ScrollByField(_ context.Context, collection, field, value string, limit uint32) ([]*qdrant.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pts, err := f.matching(collection, field, value)
	if err != nil {
		return nil, err
	}
	if uint32(len(pts)) > limit {
		pts = pts[:limit]
	}
	return pts, nil
}

func (f *fakeQdrant) Health(context.Context) error { return f.healthErr }

func (f *fakeQdrant) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ qdrant.Client = (*fakeQdrant)(nil)
