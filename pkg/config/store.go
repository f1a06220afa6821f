package config

import (
	"context"
	"fmt"

	"github.com/platinummonkey/labkit/pkg/docstore"
)

// Open connects to the configured document store backend. SQL backends
// get their schema created.
func (c StoreConfig) Open(ctx context.Context) (docstore.Store, error) {
	switch c.Type {
	case StorePostgres, StoreSQLite:
		dialect := docstore.Postgres
		if c.Type == StoreSQLite {
			dialect = docstore.SQLite
		}
		store, err := docstore.OpenSQL(ctx, dialect, docstore.SQLConfig{
			URL:          c.URL,
			MaxOpenConns: c.MaxOpenConns,
			MaxIdleConns: c.MaxIdleConns,
			Timeout:      c.Timeout,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	case StoreMongo:
		return docstore.OpenMongo(ctx, c.MongoURI, c.MongoDatabase)

	case StoreMemory, "":
		return docstore.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("invalid store type: %s", c.Type)
	}
}
