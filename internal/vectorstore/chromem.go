package vectorstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// schemaDocID is the marker document whose metadata records the dimension.
const schemaDocID = "__schema__"

// errNoEmbeddingFunc guards against chromem embedding text itself; every
// document and query here carries its own vector.
var errNoEmbeddingFunc = errors.New("chromem store does not embed text")

// ChromemConfig configures the in-process chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. "~" is expanded.
	Path       string
	Compress   bool
	Collection string
}

// ChromemStore keeps records in a persistent chromem-go collection.
//
// chromem normalizes stored vectors, so the raw embedding is also kept in
// metadata and returned from queries unchanged.
type ChromemStore struct {
	db         *chromem.DB
	collection string
	logger     *logging.Logger

	// mu serializes schema checks and inserts so rollback sees its own writes.
	mu sync.Mutex
}

// NewChromemStore opens the persistent DB at cfg.Path.
func NewChromemStore(cfg ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: chromem path is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		cfg.Collection = config.DefaultCollection
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	s := &ChromemStore{
		db:         db,
		collection: cfg.Collection,
		logger:     logger.Named("chromem"),
	}
	s.logger.Info(context.Background(), "chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", cfg.Compress),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// Backend implements Store.
func (s *ChromemStore) Backend() string { return config.BackendChromem }

// EnsureSchema implements Store.
func (s *ChromemStore) EnsureSchema(ctx context.Context, dimension int) (err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.EnsureSchema")
	defer span.End()
	done := observe(span, s.Backend(), "ensure_schema")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.ensureSchemaLocked(ctx, dimension)
	return err
}

func (s *ChromemStore) ensureSchemaLocked(ctx context.Context, dimension int) (*chromem.Collection, error) {
	if dimension <= 0 {
		return nil, &PreconditionError{Reason: fmt.Sprintf("dimension must be positive, got %d", dimension)}
	}

	col, err := s.db.GetOrCreateCollection(s.collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", s.collection, err)
	}

	existing, err := schemaDimension(ctx, col)
	if err == nil {
		if existing != dimension {
			return nil, &SchemaMismatchError{Collection: s.collection, Existing: existing, Requested: dimension}
		}
		return col, nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return nil, err
	}

	marker := chromem.Document{
		ID:        schemaDocID,
		Metadata:  map[string]string{"dimension": strconv.Itoa(dimension), "metric": "cosine"},
		Embedding: unitVector(dimension),
		Content:   "schema",
	}
	if err := col.AddDocument(ctx, marker); err != nil {
		return nil, fmt.Errorf("writing schema marker: %w", err)
	}
	s.logger.Info(ctx, "collection created",
		zap.String("collection", s.collection),
		zap.Int("dimension", dimension),
	)
	return col, nil
}

// schemaDimension reads the dimension from the marker document.
func schemaDimension(ctx context.Context, col *chromem.Collection) (int, error) {
	doc, err := col.GetByID(ctx, schemaDocID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, col.Name)
	}
	dim, err := strconv.Atoi(doc.Metadata["dimension"])
	if err != nil {
		return 0, fmt.Errorf("corrupt schema marker in %s: %w", col.Name, err)
	}
	return dim, nil
}

// Insert implements Store. A partial write is rolled back by id.
func (s *ChromemStore) Insert(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) (receipt *StoreReceipt, err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID), attribute.Int("chunk_count", len(chunks)))
	done := observe(span, s.Backend(), "insert")
	defer func() { done(err) }()

	dim, err := validateInsert(documentID, chunks, embeddings)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.ensureSchemaLocked(ctx, dim)
	if err != nil {
		return nil, err
	}

	insertedAt := strconv.FormatInt(time.Now().UnixNano(), 10)
	docs := make([]chromem.Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = uuid.NewString()
		docs[i] = chromem.Document{
			ID: ids[i],
			Metadata: map[string]string{
				fieldDocumentID: documentID,
				fieldChunkIndex: strconv.Itoa(i),
				fieldInsertedAt: insertedAt,
				"embedding":     base64.StdEncoding.EncodeToString(float32SliceToBytes(embeddings[i])),
			},
			Embedding: embeddings[i],
			Content:   chunk,
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		if derr := col.Delete(context.WithoutCancel(ctx), nil, nil, ids...); derr != nil {
			s.logger.Error(ctx, "rollback of partial insert failed",
				zap.String("collection", s.collection),
				zap.Error(derr),
			)
		}
		return nil, fmt.Errorf("adding %d documents: %w", len(docs), err)
	}

	recordsInserted.WithLabelValues(s.Backend()).Add(float64(len(docs)))
	return &StoreReceipt{
		DocumentID: documentID,
		Inserted:   len(docs),
		Collection: s.collection,
		Backend:    s.Backend(),
	}, nil
}

// QueryByDocument implements Store.
func (s *ChromemStore) QueryByDocument(ctx context.Context, documentID string) (records []StoredRecord, err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.QueryByDocument")
	defer span.End()
	done := observe(span, s.Backend(), "query")
	defer func() { done(err) }()

	col := s.db.GetCollection(s.collection, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	dim, err := schemaDimension(ctx, col)
	if err != nil {
		return nil, err
	}

	// chromem has no scan API; an exhaustive filtered query returns every match.
	results, err := col.QueryEmbedding(ctx, unitVector(dim), col.Count(), map[string]string{fieldDocumentID: documentID}, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.collection, err)
	}

	type ordered struct {
		rec        StoredRecord
		insertedAt int64
	}
	rows := make([]ordered, 0, len(results))
	for _, r := range results {
		idx, _ := strconv.Atoi(r.Metadata[fieldChunkIndex])
		at, _ := strconv.ParseInt(r.Metadata[fieldInsertedAt], 10, 64)
		raw, _ := base64.StdEncoding.DecodeString(r.Metadata["embedding"])
		rows = append(rows, ordered{
			rec: StoredRecord{
				ID:         r.ID,
				DocumentID: r.Metadata[fieldDocumentID],
				ChunkIndex: idx,
				ChunkText:  r.Content,
				Embedding:  bytesToFloat32Slice(raw),
			},
			insertedAt: at,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].rec.ChunkIndex != rows[j].rec.ChunkIndex {
			return rows[i].rec.ChunkIndex < rows[j].rec.ChunkIndex
		}
		if rows[i].insertedAt != rows[j].insertedAt {
			return rows[i].insertedAt < rows[j].insertedAt
		}
		return rows[i].rec.ID < rows[j].rec.ID
	})

	records = make([]StoredRecord, len(rows))
	for i, r := range rows {
		records[i] = r.rec
	}
	return records, nil
}

// Describe implements Store.
func (s *ChromemStore) Describe(ctx context.Context) (info *CollectionInfo, err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Describe")
	defer span.End()
	done := observe(span, s.Backend(), "describe")
	defer func() { done(err) }()

	col := s.db.GetCollection(s.collection, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	marker, err := col.GetByID(ctx, schemaDocID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	dim, err := strconv.Atoi(marker.Metadata["dimension"])
	if err != nil {
		return nil, fmt.Errorf("corrupt schema marker in %s: %w", s.collection, err)
	}
	return &CollectionInfo{
		Name:        s.collection,
		Backend:     s.Backend(),
		Dimension:   dim,
		Metric:      marker.Metadata["metric"],
		RecordCount: col.Count() - 1,
	}, nil
}

// Close implements Store. chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

// unitVector returns e0 of length dim. chromem normalizes query vectors, so
// a zero vector would produce NaN similarities.
func unitVector(dim int) []float32 {
	v := make([]float32, dim)
	if dim > 0 {
		v[0] = 1
	}
	return v
}

var _ Store = (*ChromemStore)(nil)
