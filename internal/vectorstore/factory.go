package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/fyrsmithlabs/docflow/internal/qdrant"
)

// NewStore builds the backend selected by cfg.Backend:
//   - "sqlite" (default): embedded file at cfg.SQLite.Path
//   - "qdrant": gRPC client to cfg.Qdrant, health-checked on construction
//   - "chromem": persistent in-process DB at cfg.Chromem.Path
func NewStore(cfg config.StoreConfig, logger *logging.Logger) (Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	collection := cfg.Collection
	if collection == "" {
		collection = config.DefaultCollection
	}

	switch cfg.Backend {
	case config.BackendSQLite, "":
		return NewSQLiteStore(SQLiteConfig{
			Path:       cfg.SQLite.Path,
			Collection: collection,
		}, logger)

	case config.BackendQdrant:
		client, err := qdrant.NewGRPCClient(qdrant.ConfigFrom(cfg.Qdrant), logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		store, err := NewQdrantStore(client, collection, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil

	case config.BackendChromem:
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: collection,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported store backend %q (supported: sqlite, qdrant, chromem)",
			ErrInvalidConfig, cfg.Backend)
	}
}
