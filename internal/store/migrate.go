package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Migration is one ordered, versioned upgrade step (§4.9).
type Migration struct {
	FromVersion int
	ToVersion   int
	Description string
	Apply       func(ctx context.Context, tx *sql.Tx) error
}

// Migrations is the ordered list of every migration this build knows
// about. Column additions and compatibility fixes only ever append here;
// nothing is ever edited in place once it has shipped.
var Migrations = []Migration{
	{
		FromVersion: 0, ToVersion: 1,
		Description: "add schema_version and session_index_meta tracking tables",
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
				CREATE TABLE IF NOT EXISTS session_index_meta (gap_threshold INTEGER NOT NULL DEFAULT 1800, built_at INTEGER);
			`)
			return err
		},
	},
	{
		FromVersion: 1, ToVersion: 2,
		Description: "add member.aliases column",
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			return addColumnIfAbsent(ctx, tx, "member", "aliases", "TEXT NOT NULL DEFAULT '[]'")
		},
	},
	{
		FromVersion: 2, ToVersion: 3,
		Description: "add member.avatar and meta.group_avatar columns",
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			if err := addColumnIfAbsent(ctx, tx, "member", "avatar", "TEXT"); err != nil {
				return err
			}
			return addColumnIfAbsent(ctx, tx, "meta", "group_avatar", "TEXT")
		},
	},
	{
		FromVersion: 3, ToVersion: 4,
		Description: "add meta.owner_id column",
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			return addColumnIfAbsent(ctx, tx, "meta", "owner_id", "TEXT")
		},
	},
}

// Pending returns the subset of Migrations that must run to bring current
// up to SchemaVersion, in order.
func Pending(current int) []Migration {
	var out []Migration
	for _, m := range Migrations {
		if m.FromVersion >= current {
			out = append(out, m)
		}
	}
	return out
}

// Run applies every pending migration for s in a single transaction per
// migration, advancing the recorded version after each (§4.9: "A migration
// runs the declared steps per store in a single transaction and advances
// the recorded version").
func Run(ctx context.Context, s *Store) error {
	current, err := s.SchemaVersionOf(ctx)
	if err != nil {
		return err
	}
	for _, m := range Pending(current) {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "begin migration %d->%d", m.FromVersion, m.ToVersion)
		}
		if err := m.Apply(ctx, tx); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "apply migration %d->%d: %s", m.FromVersion, m.ToVersion, m.Description)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, m.ToVersion); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d->%d", m.FromVersion, m.ToVersion)
		}
	}
	return nil
}

// addColumnIfAbsent is also used outside Migrations: it backs the lazy,
// memoized soft-migrations §4.9 describes ("adding an aliases column when
// absent, adding an avatar column when absent... performed lazily on first
// use per session").
func addColumnIfAbsent(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	_, err = tx.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+column+" "+decl)
	return err
}

// SoftMigrator memoizes the lazy per-session column checks for the process
// lifetime (§4.9), so a busy worker host doesn't re-run PRAGMA table_info
// on every request against the same open session.
type SoftMigrator struct {
	checked map[string]bool
}

func NewSoftMigrator() *SoftMigrator {
	return &SoftMigrator{checked: make(map[string]bool)}
}

// EnsureColumns runs addColumnIfAbsent for member.aliases and member.avatar
// against s exactly once per sessionID for the life of this SoftMigrator.
func (sm *SoftMigrator) EnsureColumns(ctx context.Context, sessionID string, s *Store) error {
	if sm.checked[sessionID] {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := addColumnIfAbsent(ctx, tx, "member", "aliases", "TEXT NOT NULL DEFAULT '[]'"); err != nil {
		return err
	}
	if err := addColumnIfAbsent(ctx, tx, "member", "avatar", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfAbsent(ctx, tx, "meta", "owner_id", "TEXT"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	sm.checked[sessionID] = true
	return nil
}
