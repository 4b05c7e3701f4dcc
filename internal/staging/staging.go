// Package staging implements the per-source temporary relational store used
// only during merge (§4.6, §3 "Staging record"). Its schema is
// deliberately minimal: messages carry the sender's platform id directly
// rather than joining through a member table, since no monotone id or
// nickname-history semantics apply to a staging record.
package staging

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/parser"
	"github.com/chatlab/chatlab-core/internal/parser/event"
	"github.com/chatlab/chatlab-core/internal/store"
)

const createSQL = `
CREATE TABLE IF NOT EXISTS meta (
	name TEXT, platform TEXT, type TEXT, group_id TEXT, group_avatar TEXT, source_filename TEXT
);
CREATE TABLE IF NOT EXISTS member (
	platform_id TEXT PRIMARY KEY,
	account_name TEXT,
	group_nickname TEXT,
	avatar TEXT
);
CREATE TABLE IF NOT EXISTS message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_platform_id TEXT NOT NULL,
	sender_account_name TEXT,
	sender_group_nickname TEXT,
	ts INTEGER NOT NULL,
	type INTEGER NOT NULL,
	content TEXT
);
CREATE INDEX IF NOT EXISTS idx_staging_message_ts_sender ON message(ts, sender_platform_id);
`

// Store is one staging store for a single source.
type Store struct {
	*store.Store
	SourceFilename string
}

// Dir returns the directory staging stores live under, per §6.3:
// "<documents>/<AppName>/temp/merge_*.db".
func Dir(tempDir string) string { return filepath.Join(tempDir, "") }

// New creates a fresh staging store under tempDir named per §6.3.
func New(ctx context.Context, tempDir, sourceFilename string) (*Store, error) {
	path := filepath.Join(tempDir, "merge_"+uuid.NewString()+".db")
	st, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := st.DB.ExecContext(ctx, createSQL); err != nil {
		st.Close()
		store.Delete(path)
		return nil, errors.Wrap(err, "create staging schema")
	}
	return &Store{Store: st, SourceFilename: sourceFilename}, nil
}

// Sweep removes every staging store under tempDir; worker.New calls it
// when the host starts (§5 "staging store directory is swept on process
// start").
func Sweep(tempDir string) error {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if len(name) >= len("merge_") && name[:6] == "merge_" {
			store.Delete(filepath.Join(tempDir, name))
		}
	}
	return nil
}

// Ingest drives strm's event stream into this staging store — the same
// parser.Stream implementations the main import pipeline uses double as
// the staging store's own ingestion path (§9: "prefer it even for small
// inputs, because it unifies the code path").
func (s *Store) Ingest(ctx context.Context, strm parser.Stream, path string) error {
	sink := &stagingSink{ctx: ctx, store: s}
	return strm.Parse(ctx, path, sink)
}

type stagingSink struct {
	ctx   context.Context
	store *Store
}

func (s *stagingSink) OnMeta(m event.Meta) error {
	_, err := s.store.DB.ExecContext(s.ctx,
		`INSERT INTO meta(name, platform, type, group_id, group_avatar, source_filename) VALUES (?,?,?,?,?,?)`,
		m.Meta.Name, string(m.Meta.Platform), string(m.Meta.Kind), m.Meta.GroupID, m.Meta.GroupAvatar, s.store.SourceFilename)
	return errors.Wrap(err, "insert staging meta")
}

func (s *stagingSink) OnMembers(m event.Members) error {
	for _, mem := range m.Members {
		if err := s.upsertMember(mem); err != nil {
			return err
		}
	}
	return nil
}

func (s *stagingSink) upsertMember(mem model.Member) error {
	_, err := s.store.DB.ExecContext(s.ctx,
		`INSERT INTO member(platform_id, account_name, group_nickname, avatar) VALUES (?,?,?,?)
		 ON CONFLICT(platform_id) DO UPDATE SET
			account_name=CASE WHEN excluded.account_name != '' THEN excluded.account_name ELSE member.account_name END,
			group_nickname=CASE WHEN excluded.group_nickname != '' THEN excluded.group_nickname ELSE member.group_nickname END,
			avatar=CASE WHEN excluded.avatar != '' THEN excluded.avatar ELSE member.avatar END`,
		mem.PlatformID, mem.AccountName, mem.GroupNickname, mem.Avatar)
	return errors.Wrap(err, "upsert staging member")
}

func (s *stagingSink) OnMessageBatch(batch event.MessageBatch) error {
	tx, err := s.store.DB.BeginTx(s.ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin staging batch")
	}
	defer tx.Rollback()
	for _, raw := range batch.Messages {
		if raw.SenderPlatformID == "" {
			continue
		}
		if _, err := tx.ExecContext(s.ctx,
			`INSERT INTO member(platform_id, account_name, group_nickname) VALUES (?,?,?)
			 ON CONFLICT(platform_id) DO NOTHING`,
			raw.SenderPlatformID, raw.SenderAccount, raw.SenderNick,
		); err != nil {
			return errors.Wrap(err, "ensure staging member from message")
		}
		if _, err := tx.ExecContext(s.ctx,
			`INSERT INTO message(sender_platform_id, sender_account_name, sender_group_nickname, ts, type, content)
			 VALUES (?,?,?,?,?,?)`,
			raw.SenderPlatformID, raw.SenderAccount, raw.SenderNick, raw.Timestamp, int(raw.Type), raw.Content,
		); err != nil {
			return errors.Wrap(err, "insert staging message")
		}
	}
	return errors.Wrap(tx.Commit(), "commit staging batch")
}

func (s *stagingSink) OnProgress(event.Progress) {}
func (s *stagingSink) OnDone(event.Done)          {}
