// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlite is the embedded storage.Store, backed by the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leseb/docchat-gw/pkg/storage"
	"github.com/leseb/docchat-gw/pkg/storage/sqlstore"

	_ "modernc.org/sqlite"
)

func init() {
	storage.Providers.Register("sqlite", func(ctx context.Context, params map[string]string) (storage.Store, error) {
		return New(ctx, params["dsn"])
	})
}

// New opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func New(ctx context.Context, path string) (*sqlstore.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: dsn is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}

	store, err := sqlstore.New(ctx, db, sqlstore.Question)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
