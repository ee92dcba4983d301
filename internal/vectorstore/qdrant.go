package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/fyrsmithlabs/docflow/internal/qdrant"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Payload keys written on every Qdrant point.
const (
	fieldDocumentID = "document_id"
	fieldChunkIndex = "chunk_index"
	fieldChunkText  = "chunk_text"
	fieldInsertedAt = "inserted_at"
)

// QdrantStore stores records as Qdrant points with UUID ids, indexed on a
// keyword payload field for document lookups.
type QdrantStore struct {
	client     qdrant.Client
	collection string
	logger     *logging.Logger

	mu          sync.Mutex
	ensuredSize int
}

// NewQdrantStore wraps client. The store owns client and closes it on Close.
func NewQdrantStore(client qdrant.Client, collection string, logger *logging.Logger) (*QdrantStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qdrant client is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if collection == "" {
		collection = config.DefaultCollection
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	return &QdrantStore{
		client:     client,
		collection: collection,
		logger:     logger.Named("qdrant_store"),
	}, nil
}

// Backend implements Store.
func (s *QdrantStore) Backend() string { return config.BackendQdrant }

// EnsureSchema implements Store.
func (s *QdrantStore) EnsureSchema(ctx context.Context, dimension int) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureSchema")
	defer span.End()
	done := observe(span, s.Backend(), "ensure_schema")
	defer func() { done(err) }()

	return s.ensureSchema(ctx, dimension)
}

func (s *QdrantStore) ensureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return &PreconditionError{Reason: fmt.Sprintf("dimension must be positive, got %d", dimension)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensuredSize != 0 {
		if s.ensuredSize != dimension {
			return &SchemaMismatchError{Collection: s.collection, Existing: s.ensuredSize, Requested: dimension}
		}
		return nil
	}

	size, err := s.client.CollectionVectorSize(ctx, s.collection)
	switch {
	case errors.Is(err, qdrant.ErrCollectionNotFound):
		err = s.client.CreateCollection(ctx, s.collection, uint64(dimension))
		if status.Code(err) == codes.AlreadyExists {
			// Another worker won the race; compare against what it created.
			size, err = s.client.CollectionVectorSize(ctx, s.collection)
			if err != nil {
				return fmt.Errorf("reading collection %s: %w", s.collection, err)
			}
			break
		}
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", s.collection, err)
		}
		size = uint64(dimension)
		s.logger.Info(ctx, "collection created",
			zap.String("collection", s.collection),
			zap.Int("dimension", dimension),
		)
	case err != nil:
		return fmt.Errorf("reading collection %s: %w", s.collection, err)
	}

	if size > math.MaxInt32 || int(size) != dimension {
		return &SchemaMismatchError{Collection: s.collection, Existing: int(size), Requested: dimension}
	}

	// Creating an existing payload index is a no-op in Qdrant.
	if err := s.client.CreateKeywordIndex(ctx, s.collection, fieldDocumentID); err != nil {
		return fmt.Errorf("creating %s index: %w", fieldDocumentID, err)
	}
	s.ensuredSize = dimension
	return nil
}

// Insert implements Store. All points go in one waited upsert request.
func (s *QdrantStore) Insert(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) (receipt *StoreReceipt, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Insert")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID), attribute.Int("chunk_count", len(chunks)))
	done := observe(span, s.Backend(), "insert")
	defer func() { done(err) }()

	dim, err := validateInsert(documentID, chunks, embeddings)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx, dim); err != nil {
		return nil, err
	}

	insertedAt := time.Now().UnixNano()
	points := make([]*qdrant.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.Point{
			ID:     uuid.NewString(),
			Vector: embeddings[i],
			Payload: map[string]interface{}{
				fieldDocumentID: documentID,
				fieldChunkIndex: i,
				fieldChunkText:  chunk,
				fieldInsertedAt: insertedAt,
			},
		}
	}
	if err := s.client.Upsert(ctx, s.collection, points); err != nil {
		return nil, fmt.Errorf("upserting %d points: %w", len(points), err)
	}

	recordsInserted.WithLabelValues(s.Backend()).Add(float64(len(points)))
	return &StoreReceipt{
		DocumentID: documentID,
		Inserted:   len(points),
		Collection: s.collection,
		Backend:    s.Backend(),
	}, nil
}

// QueryByDocument implements Store.
func (s *QdrantStore) QueryByDocument(ctx context.Context, documentID string) (records []StoredRecord, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.QueryByDocument")
	defer span.End()
	done := observe(span, s.Backend(), "query")
	defer func() { done(err) }()

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}

	n, err := s.client.CountByField(ctx, s.collection, fieldDocumentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	if n == 0 {
		return []StoredRecord{}, nil
	}
	if n > math.MaxUint32 {
		return nil, fmt.Errorf("document %s has %d records, too many to scroll at once", documentID, n)
	}

	points, err := s.client.ScrollByField(ctx, s.collection, fieldDocumentID, documentID, uint32(n))
	if err != nil {
		return nil, fmt.Errorf("scrolling records: %w", err)
	}

	type ordered struct {
		rec        StoredRecord
		insertedAt int64
	}
	rows := make([]ordered, 0, len(points))
	for _, p := range points {
		rows = append(rows, ordered{
			rec: StoredRecord{
				ID:         p.ID,
				DocumentID: payloadString(p.Payload, fieldDocumentID),
				ChunkIndex: int(payloadInt(p.Payload, fieldChunkIndex)),
				ChunkText:  payloadString(p.Payload, fieldChunkText),
				Embedding:  p.Vector,
			},
			insertedAt: payloadInt(p.Payload, fieldInsertedAt),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].rec.ChunkIndex != rows[j].rec.ChunkIndex {
			return rows[i].rec.ChunkIndex < rows[j].rec.ChunkIndex
		}
		return rows[i].insertedAt < rows[j].insertedAt
	})

	records = make([]StoredRecord, len(rows))
	for i, r := range rows {
		records[i] = r.rec
	}
	return records, nil
}

// Describe implements Store.
func (s *QdrantStore) Describe(ctx context.Context) (info *CollectionInfo, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Describe")
	defer span.End()
	done := observe(span, s.Backend(), "describe")
	defer func() { done(err) }()

	size, err := s.client.CollectionVectorSize(ctx, s.collection)
	if errors.Is(err, qdrant.ErrCollectionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return nil, err
	}
	count, err := s.client.CollectionPointCount(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:        s.collection,
		Backend:     s.Backend(),
		Dimension:   int(size),
		Metric:      MetricL2,
		RecordCount: int(count),
	}, nil
}

// Health implements HealthChecker.
func (s *QdrantStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close closes the underlying client.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func payloadString(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	return v
}

func payloadInt(payload map[string]interface{}, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

var _ Store = (*QdrantStore)(nil)
