// Package importer drives a parser's event stream into a freshly created
// session store with batched transactions, deferred indexing, and in-memory
// nickname-history tracking.
package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/parser"
	"github.com/chatlab/chatlab-core/internal/parser/event"
	"github.com/chatlab/chatlab-core/internal/store"
)

// Dispatch maps a format.Descriptor.ID to the parser.Stream that handles
// it, a descriptor-table-plus-dispatch shape in place of per-format branching.
type Dispatch map[string]parser.Stream

// Pipeline is the import pipeline. It holds no per-import state; Import
// may run concurrently for disjoint sessions (§5).
type Pipeline struct {
	Registry  *format.Registry
	Dispatch  Dispatch
	StoreDir  string
	Clock     func() int64 // now_seconds, injected for test determinism
	Log       *log.Entry

	CommitEvery     int
	CheckpointEvery int
}

// New builds a Pipeline with the default batch and checkpoint sizes.
func New(reg *format.Registry, dispatch Dispatch, storeDir string) *Pipeline {
	return &Pipeline{
		Registry:        reg,
		Dispatch:        dispatch,
		StoreDir:        storeDir,
		Clock:           func() int64 { return time.Now().Unix() },
		Log:             log.WithField("component", "importer"),
		CommitEvery:     parser.CommitEvery,
		CheckpointEvery: parser.CheckpointEvery,
	}
}

// Progress is the callback the caller (typically the worker host) receives
// progress events through.
type Progress func(event.Progress)

// Result summarizes a completed import.
type Result struct {
	SessionID    string
	MessageCount int64
	Dropped      int64
}

// Import runs the full pipeline described in §4.4 against sourcePath,
// returning the freshly created session id. On any failure the partially
// created store file (and sidecars) is deleted and the active transaction
// rolled back, per §4.4 step 6 and §7b.
func (p *Pipeline) Import(ctx context.Context, sourcePath string, onProgress Progress) (Result, error) {
	sniff, err := format.Sniff(p.Registry, sourcePath, format.DefaultPrefixSize)
	if err != nil {
		return Result{}, err
	}
	strm, ok := p.Dispatch[sniff.Descriptor.ID]
	if !ok {
		return Result{}, coreerr.New(coreerr.CodeUnrecognizedFormat, "no parser registered for "+sniff.Descriptor.ID)
	}

	inputPath := sourcePath
	if pre, ok := strm.(parser.Preprocessor); ok {
		info, statErr := os.Stat(sourcePath)
		if statErr == nil && pre.NeedsPreprocess(sourcePath, info.Size()) {
			tmp, err := pre.Preprocess(ctx, sourcePath, &progressSink{onProgress: onProgress})
			if err != nil {
				return Result{}, coreerr.Wrap(coreerr.CodeIO, err, "preprocess")
			}
			defer os.Remove(tmp)
			inputPath = tmp
		}
	}

	sessionID := NewSessionID()
	dbPath := filepath.Join(p.StoreDir, sessionID+".db")

	st, err := store.Open(ctx, dbPath)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, coreerr.New(coreerr.CodeCancelled, "import cancelled")
		}
		return Result{}, err
	}
	if err := st.CreateSchema(ctx); err != nil {
		st.Close()
		store.Delete(dbPath)
		return Result{}, err
	}

	run := &importRun{
		ctx:       ctx,
		store:     st,
		pipeline:  p,
		sessionID: sessionID,
		tracker:   newNicknameTracker(),
		memberIDs: make(map[string]int64),
		onProgress: onProgress,
	}

	err = strm.Parse(ctx, inputPath, run)
	if err != nil || run.fatalErr != nil {
		run.rollbackActive()
		st.Close()
		store.Delete(dbPath)
		if err == nil {
			err = run.fatalErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, coreerr.New(coreerr.CodeCancelled, "import cancelled")
		}
		return Result{}, coreerr.Wrap(coreerr.CodeParse, err, "parse")
	}

	if err := run.finalize(); err != nil {
		run.rollbackActive()
		st.Close()
		store.Delete(dbPath)
		return Result{}, coreerr.Wrap(coreerr.CodeIO, err, "finalize import")
	}

	if err := st.Close(); err != nil {
		return Result{}, coreerr.Wrap(coreerr.CodeIO, err, "close store")
	}

	return Result{SessionID: sessionID, MessageCount: run.inserted, Dropped: run.dropped}, nil
}

// progressSink is a minimal event.Sink used only to relay Preprocess's
// progress events onward through the same Progress callback Import takes,
// without pulling in the rest of importRun's store-writing machinery.
type progressSink struct {
	onProgress Progress
}

func (s *progressSink) OnMeta(event.Meta) error          { return nil }
func (s *progressSink) OnMembers(event.Members) error    { return nil }
func (s *progressSink) OnMessageBatch(event.MessageBatch) error { return nil }
func (s *progressSink) OnProgress(p event.Progress) {
	if s.onProgress != nil {
		s.onProgress(p)
	}
}
func (s *progressSink) OnDone(event.Done) {}

// importRun implements event.Sink for the duration of one Import call. It
// owns the currently active transaction and commits it every CommitEvery
// messages, per §4.4 step 4.
type importRun struct {
	ctx        context.Context
	store      *store.Store
	pipeline   *Pipeline
	sessionID  string
	onProgress Progress

	tx              *sql.Tx
	sinceCommit     int
	sinceCheckpoint int
	inserted        int64
	dropped         int64

	tracker   *nicknameTracker
	memberIDs map[string]int64 // platform id -> row id, first-seen-through-messages upsert cache

	fatalErr error
}

func (r *importRun) OnMeta(m event.Meta) error {
	meta := m.Meta
	meta.ImportedAt = r.pipeline.Clock()
	_, err := r.store.DB.ExecContext(r.ctx,
		`INSERT INTO meta(name, platform, type, imported_at, group_id, group_avatar) VALUES (?,?,?,?,?,?)`,
		meta.Name, string(meta.Platform), string(meta.Kind), meta.ImportedAt, meta.GroupID, meta.GroupAvatar)
	return errors.Wrap(err, "insert meta")
}

func (r *importRun) OnMembers(m event.Members) error {
	for _, mem := range m.Members {
		if err := r.upsertMember(mem); err != nil {
			return err
		}
	}
	return nil
}

func (r *importRun) upsertMember(mem model.Member) error {
	aliasesJSON, _ := json.Marshal(mem.Aliases)
	queryRow := r.store.DB.QueryRowContext
	if r.tx != nil {
		queryRow = r.tx.QueryRowContext
	}
	var id int64
	err := queryRow(r.ctx,
		`INSERT INTO member(platform_id, account_name, group_nickname, aliases, avatar)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(platform_id) DO UPDATE SET
			account_name=excluded.account_name,
			group_nickname=excluded.group_nickname,
			avatar=COALESCE(excluded.avatar, member.avatar)
		 RETURNING id`,
		mem.PlatformID, mem.AccountName, mem.GroupNickname, string(aliasesJSON), mem.Avatar,
	).Scan(&id)
	if err != nil {
		return errors.Wrap(err, "upsert member")
	}
	r.memberIDs[mem.PlatformID] = id
	return nil
}

// ensureMember returns the row id for platformID, inserting an
// avatar-less row on first sight through a message rather than the members
// roster (§4.4 step 4: "Inserts members first-seen through messages as
// avatar-less rows").
func (r *importRun) ensureMember(platformID, account, nick string) (int64, error) {
	if id, ok := r.memberIDs[platformID]; ok {
		return id, nil
	}
	queryRow := r.store.DB.QueryRowContext
	if r.tx != nil {
		queryRow = r.tx.QueryRowContext
	}
	var id int64
	err := queryRow(r.ctx,
		`INSERT INTO member(platform_id, account_name, group_nickname, aliases)
		 VALUES (?,?,?,'[]')
		 ON CONFLICT(platform_id) DO UPDATE SET account_name=member.account_name
		 RETURNING id`,
		platformID, account, nick,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "ensure member")
	}
	r.memberIDs[platformID] = id
	return id, nil
}

func (r *importRun) activeTx() (*sql.Tx, error) {
	if r.tx != nil {
		return r.tx, nil
	}
	tx, err := r.store.DB.BeginTx(r.ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin batch tx")
	}
	r.tx = tx
	return tx, nil
}

func (r *importRun) rollbackActive() {
	if r.tx != nil {
		r.tx.Rollback()
		r.tx = nil
	}
}

// OnMessageBatch drops invalid messages, upserts first-seen senders, and
// inserts the rest within the currently active transaction, committing and
// checkpointing on the configured intervals (§4.4 step 4).
func (r *importRun) OnMessageBatch(batch event.MessageBatch) error {
	select {
	case <-r.ctx.Done():
		r.fatalErr = r.ctx.Err()
		return r.fatalErr
	default:
	}

	tx, err := r.activeTx()
	if err != nil {
		r.fatalErr = err
		return err
	}

	for _, raw := range batch.Messages {
		if raw.SenderPlatformID == "" || raw.Timestamp < 0 || !model.IsKnown(raw.Type) {
			r.dropped++
			continue
		}
		senderID, err := r.ensureMember(raw.SenderPlatformID, raw.SenderAccount, raw.SenderNick)
		if err != nil {
			r.fatalErr = err
			return err
		}
		if _, err := tx.ExecContext(r.ctx,
			`INSERT INTO message(sender_id, sender_account_name, sender_group_nickname, ts, type, content)
			 VALUES (?,?,?,?,?,?)`,
			senderID, raw.SenderAccount, raw.SenderNick, raw.Timestamp, int(raw.Type), raw.Content,
		); err != nil {
			r.fatalErr = errors.Wrap(err, "insert message")
			return r.fatalErr
		}
		r.inserted++
		r.sinceCommit++
		r.sinceCheckpoint++

		if raw.SenderAccount != "" {
			r.tracker.Observe(raw.SenderPlatformID, model.NameAccount, raw.SenderAccount, raw.Timestamp)
		}
		if raw.SenderNick != "" {
			r.tracker.Observe(raw.SenderPlatformID, model.NameNickname, raw.SenderNick, raw.Timestamp)
		}

		if r.sinceCommit >= r.pipeline.CommitEvery {
			if err := r.commit(); err != nil {
				r.fatalErr = err
				return err
			}
		}
	}
	return nil
}

func (r *importRun) commit() error {
	if r.tx == nil {
		return nil
	}
	if err := r.tx.Commit(); err != nil {
		return errors.Wrap(err, "commit batch tx")
	}
	r.tx = nil
	r.sinceCommit = 0
	if r.sinceCheckpoint >= r.pipeline.CheckpointEvery {
		if err := r.store.Checkpoint(r.ctx); err != nil {
			return err
		}
		r.sinceCheckpoint = 0
	}
	return nil
}

func (r *importRun) OnProgress(p event.Progress) {
	if r.onProgress != nil {
		r.onProgress(p)
	}
}

func (r *importRun) OnDone(d event.Done) {
	if d.Err != nil {
		r.fatalErr = d.Err
	}
	r.dropped += d.Dropped
}

// finalize runs §4.4 step 5: compact nickname history, create secondary
// indexes, final checkpoint.
func (r *importRun) finalize() error {
	if err := r.commit(); err != nil {
		return err
	}

	tx, err := r.store.DB.BeginTx(r.ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin compaction tx")
	}
	defer tx.Rollback()

	if err := r.compactInto(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit compaction tx")
	}

	if err := r.store.CreateSecondaryIndexes(r.ctx); err != nil {
		return err
	}
	return r.store.Checkpoint(r.ctx)
}

func (r *importRun) compactInto(tx *sql.Tx) error {
	for platformID, id := range r.memberIDs {
		for _, kind := range []model.NameKind{model.NameAccount, model.NameNickname} {
			var obs []observation
			if kind == model.NameAccount {
				obs = r.tracker.account[platformID]
			} else {
				obs = r.tracker.nickname[platformID]
			}
			entries := Compact(platformID, kind, obs)
			for _, e := range entries {
				var end any
				if !e.Open {
					end = e.End
				}
				if _, err := tx.ExecContext(r.ctx,
					`INSERT INTO member_name_history(member_id, name_type, name, start_ts, end_ts) VALUES (?,?,?,?,?)`,
					id, string(e.Kind), e.Name, e.Start, end,
				); err != nil {
					return errors.Wrap(err, "insert name history")
				}
			}
			if latest := LatestName(obs); latest != "" {
				col := "account_name"
				if kind == model.NameNickname {
					col = "group_nickname"
				}
				if _, err := tx.ExecContext(r.ctx, `UPDATE member SET `+col+` = ? WHERE id = ?`, latest, id); err != nil {
					return errors.Wrap(err, "update member latest name")
				}
			}
		}
	}
	return nil
}
