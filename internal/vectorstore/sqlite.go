package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig configures the embedded SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" is not supported because every
	// pooled connection would see its own database.
	Path       string
	Collection string
}

// SQLiteStore keeps records in a single table per collection. Embeddings are
// little-endian float32 blobs; the dimension lives in collection_meta.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	collection string
	logger     *logging.Logger
}

// NewSQLiteStore opens (or creates) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig, logger *logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		cfg.Collection = config.DefaultCollection
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL lets the worker write while the CLI reads. Immediate transactions
	// take the write lock up front so concurrent schema checks serialize.
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS collection_meta (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			metric TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collection_meta table: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		path:       cfg.Path,
		collection: cfg.Collection,
		logger:     logger.Named("sqlite"),
	}
	s.logger.Info(context.Background(), "sqlite store opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

// Backend implements Store.
func (s *SQLiteStore) Backend() string { return config.BackendSQLite }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// EnsureSchema implements Store.
func (s *SQLiteStore) EnsureSchema(ctx context.Context, dimension int) (err error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.EnsureSchema")
	defer span.End()
	done := observe(span, s.Backend(), "ensure_schema")
	defer func() { done(err) }()

	if dimension <= 0 {
		return &PreconditionError{Reason: fmt.Sprintf("dimension must be positive, got %d", dimension)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.ensureSchemaTx(ctx, tx, dimension); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	return nil
}

// ensureSchemaTx checks or creates the collection inside tx.
func (s *SQLiteStore) ensureSchemaTx(ctx context.Context, tx *sql.Tx, dimension int) error {
	existing, err := s.dimensionTx(ctx, tx)
	switch {
	case err == nil:
		if existing != dimension {
			return &SchemaMismatchError{Collection: s.collection, Existing: existing, Requested: dimension}
		}
		return nil
	case !errors.Is(err, ErrCollectionNotFound):
		return err
	}

	// Collection names are validated against collectionNamePattern, so
	// formatting them into DDL is safe.
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, s.collection),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document ON %s(document_id, chunk_index)`, s.collection, s.collection),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating collection %s: %w", s.collection, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO collection_meta (name, dimension, metric) VALUES (?, ?, ?)`,
		s.collection, dimension, MetricL2)
	if err != nil {
		return fmt.Errorf("recording collection meta: %w", err)
	}

	s.logger.Info(ctx, "collection created",
		zap.String("collection", s.collection),
		zap.Int("dimension", dimension),
	)
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) dimensionTx(ctx context.Context, q querier) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dimension FROM collection_meta WHERE name = ?`, s.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection meta: %w", err)
	}
	return dim, nil
}

// Insert implements Store. Schema provisioning and all rows share one
// transaction.
func (s *SQLiteStore) Insert(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) (receipt *StoreReceipt, err error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Insert")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID), attribute.Int("chunk_count", len(chunks)))
	done := observe(span, s.Backend(), "insert")
	defer func() { done(err) }()

	dim, err := validateInsert(documentID, chunks, embeddings)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.ensureSchemaTx(ctx, tx, dim); err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (document_id, chunk_index, chunk_text, embedding) VALUES (?, ?, ?, ?)`, s.collection))
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, documentID, i, chunk, float32SliceToBytes(embeddings[i])); err != nil {
			return nil, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert: %w", err)
	}

	recordsInserted.WithLabelValues(s.Backend()).Add(float64(len(chunks)))
	s.logger.Debug(ctx, "chunks inserted",
		zap.String("collection", s.collection),
		zap.Int("count", len(chunks)),
	)
	return &StoreReceipt{
		DocumentID: documentID,
		Inserted:   len(chunks),
		Collection: s.collection,
		Backend:    s.Backend(),
	}, nil
}

// QueryByDocument implements Store.
func (s *SQLiteStore) QueryByDocument(ctx context.Context, documentID string) (records []StoredRecord, err error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.QueryByDocument")
	defer span.End()
	done := observe(span, s.Backend(), "query")
	defer func() { done(err) }()

	if _, err := s.dimensionTx(ctx, s.db); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, document_id, chunk_index, chunk_text, embedding FROM %s
		 WHERE document_id = ? ORDER BY chunk_index, id`, s.collection), documentID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records = []StoredRecord{}
	for rows.Next() {
		var (
			r    StoredRecord
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &r.DocumentID, &r.ChunkIndex, &r.ChunkText, &blob); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.ID = strconv.FormatInt(id, 10)
		r.Embedding = bytesToFloat32Slice(blob)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Describe implements Store.
func (s *SQLiteStore) Describe(ctx context.Context) (info *CollectionInfo, err error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Describe")
	defer span.End()
	done := observe(span, s.Backend(), "describe")
	defer func() { done(err) }()

	info = &CollectionInfo{Name: s.collection, Backend: s.Backend()}
	err = s.db.QueryRowContext(ctx,
		`SELECT dimension, metric FROM collection_meta WHERE name = ?`, s.collection,
	).Scan(&info.Dimension, &info.Metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection meta: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.collection)).Scan(&info.RecordCount); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	return info, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// float32SliceToBytes encodes floats as little-endian IEEE 754.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

var _ Store = (*SQLiteStore)(nil)
