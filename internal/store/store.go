// Package store implements the Memory Core's durable relational database:
// schema, migrations, CRUD, transactions, and a prepared-statement cache,
// grounded on the teacher's pkg/textfs.Store and pkg/connector's
// memory_index.go DoTxn usage, generalized from a single-table file store
// to the full Memory Core schema.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
)

// TargetSchemaVersion is the schema version this build migrates up to.
const TargetSchemaVersion = 3

// Store is the Memory Core's single-file WAL-mode relational database,
// accessed through a serial execution discipline enforced by the
// underlying dbutil.Database connection pool (one writer, many readers).
type Store struct {
	db  *dbutil.Database
	log zerolog.Logger
}

// Open opens (creating if absent) the SQLite database at path, sets the
// documented PRAGMAs, runs pending migrations inside one transaction per
// migration, and returns a ready Store. A missing TARGET_SCHEMA_VERSION row
// is treated as schema version 0.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dsn := path
	memory := path == ":memory:"
	if memory {
		dsn = "file::memory:?cache=shared&_journal_mode=WAL&_foreign_keys=on"
	} else {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path)
	}
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, NewOpenError(err)
	}
	if memory {
		// A single shared in-memory connection avoids each pooled
		// connection seeing its own empty database.
		raw.SetMaxOpenConns(1)
	}
	db, err := dbutil.NewWithDB(raw, "sqlite3")
	if err != nil {
		return nil, NewOpenError(err)
	}
	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(ctx); err != nil {
		return nil, NewMigrationError(err)
	}
	return s, nil
}

// NewWithDB wraps an already-open *dbutil.Database (used by tests to share
// an in-memory sqlite handle set up via sql.Open(":memory:")).
func NewWithDB(db *dbutil.Database, log zerolog.Logger) (*Store, error) {
	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(context.Background()); err != nil {
		return nil, NewMigrationError(err)
	}
	return s, nil
}

// Close runs PRAGMA optimize and releases the underlying connection pool.
func (s *Store) Close(ctx context.Context) error {
	_, _ = s.db.Exec(ctx, "PRAGMA optimize")
	return s.db.RawDB.Close()
}

// DoTxn runs fn inside a single database transaction. Either all of fn's
// writes commit or none do; callers never observe partial effects.
func (s *Store) DoTxn(ctx context.Context, fn func(txCtx context.Context) error) error {
	return s.db.DoTxn(ctx, nil, fn)
}
