// Package store wraps one embedded relational store (§3, §6.2): one
// sqlite file per session, or a minimal-schema variant for merge staging
// (internal/staging). It owns schema creation, transaction helpers, WAL
// checkpointing, and the store-file-plus-sidecars deletion the rest of the
// core relies on for rollback-on-failure (§4.4 step 6, §9).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/chatlab/chatlab-core/internal/coreerr"
)

// Store is one open embedded relational store.
type Store struct {
	DB   *sql.DB
	Path string
}

// Open opens (creating if absent) the sqlite file at path, sets the
// journaling pragmas described in §5 ("write-ahead journaling in NORMAL
// sync mode for imports and WAL for reads"), and returns a Store. It does
// not create tables — callers call CreateSchema explicitly so a fresh
// session store can be created "without secondary indexes" (§4.4 step 3)
// while an already-migrated store is simply opened as-is.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.CodeIO, err, "open store")
	}
	db.SetMaxOpenConns(1) // single-writer discipline per session (§5, §9)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, coreerr.Wrap(coreerr.CodeIO, err, "set journal_mode")
	}
	if _, err := db.ExecContext(ctx, `PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, coreerr.Wrap(coreerr.CodeIO, err, "set synchronous")
	}
	return &Store{DB: db, Path: path}, nil
}

// CreateSchema creates every table except the secondary indexes (§4.4 step
// 3), and stamps schema_version with SchemaVersion.
func (s *Store) CreateSchema(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return coreerr.Wrap(coreerr.CodeIO, err, "begin schema tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, createTablesSQL); err != nil {
		return coreerr.Wrap(coreerr.CodeIO, err, "create tables")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return coreerr.Wrap(coreerr.CodeIO, err, "reset schema_version")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, SchemaVersion); err != nil {
		return coreerr.Wrap(coreerr.CodeIO, err, "stamp schema_version")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO session_index_meta(gap_threshold) VALUES (1800)`); err != nil {
		return coreerr.Wrap(coreerr.CodeIO, err, "seed session_index_meta")
	}
	return errors.Wrap(tx.Commit(), "commit schema tx")
}

// CreateSecondaryIndexes applies the three indexes §6.2 requires, deferred
// until after bulk import (§4.4 step 5).
func (s *Store) CreateSecondaryIndexes(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, secondaryIndexSQL)
	return coreerr.Wrap(coreerr.CodeIO, err, "create secondary indexes")
}

// Checkpoint truncates the write-ahead log (§4.4 step 4, §5).
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`)
	return coreerr.Wrap(coreerr.CodeIO, err, "checkpoint")
}

// SchemaVersionOf reads the currently stamped schema version, or 0 when the
// store predates the schema_version table entirely.
func (s *Store) SchemaVersionOf(ctx context.Context) (int, error) {
	var v int
	err := s.DB.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		// schema_version itself may not exist on a pre-migration store.
		return 0, nil
	}
	return v, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Delete removes the store file along with its WAL/SHM sidecars; it does
// not close any open handle, so callers Close first
// (§3: "destroyed by explicit delete (store file + write-ahead and
// shared-memory sidecars)"). Safe to call on a store that was never
// fully created — each Remove is individually best-effort.
func Delete(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return coreerr.Wrap(coreerr.CodeIO, err, fmt.Sprintf("remove %s%s", path, suffix))
		}
	}
	return nil
}
