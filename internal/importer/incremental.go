package importer

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/staging"
	"github.com/chatlab/chatlab-core/internal/store"
)

// dedupKey is the merge-style (timestamp, senderPlatformId, content-length)
// triple §4.5 reuses for incremental dedup against an already-imported
// session: "copies only messages whose (timestamp, sender platform id,
// content-length-as-proxy) triple does not already appear in the session".
type dedupKey struct {
	ts     int64
	sender string
	length int
}

// IncrementalAnalysis is analyzeIncremental's result: counts only, no
// write (§4.5 "A prior analyze-incremental call returns (new, duplicate,
// total) counts without writing").
type IncrementalAnalysis struct {
	New       int64
	Duplicate int64
	Total     int64
}

// existingKeys reads every (ts, sender platform id, content length) triple
// already present in the open session, joining through member for the
// platform id since message only stores the internal sender_id.
func existingKeys(ctx context.Context, db *sql.DB) (map[dedupKey]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.ts, mb.platform_id, LENGTH(CAST(COALESCE(m.content, '') AS BLOB))
		FROM message m JOIN member mb ON mb.id = m.sender_id`)
	if err != nil {
		return nil, errors.Wrap(err, "read existing message keys")
	}
	defer rows.Close()
	keys := make(map[dedupKey]bool)
	for rows.Next() {
		var k dedupKey
		if err := rows.Scan(&k.ts, &k.sender, &k.length); err != nil {
			return nil, err
		}
		keys[k] = true
	}
	return keys, rows.Err()
}

// stagedRow is one staged message with its dedup key; readStaged reads them
// back in insertion order so AnalyzeIncremental and Incremental agree on
// which rows are "new".
type stagedRow struct {
	key dedupKey
	ts  int64
	platformID, account, nick string
	typ     int
	content *string
}

func readStaged(ctx context.Context, st *staging.Store) ([]stagedRow, error) {
	rows, err := st.DB.QueryContext(ctx,
		`SELECT ts, sender_platform_id, sender_account_name, sender_group_nickname, type, content FROM message ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "read staged messages")
	}
	defer rows.Close()
	var out []stagedRow
	for rows.Next() {
		var r stagedRow
		if err := rows.Scan(&r.ts, &r.platformID, &r.account, &r.nick, &r.typ, &r.content); err != nil {
			return nil, err
		}
		length := 0
		if r.content != nil {
			length = len(*r.content)
		}
		r.key = dedupKey{ts: r.ts, sender: r.platformID, length: length}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AnalyzeIncremental parses newSourcePath into a throwaway staging store and
// reports how many of its messages are new vs. duplicate against the
// existing session, without writing anything (§4.5).
func (p *Pipeline) AnalyzeIncremental(ctx context.Context, sessionID, newSourcePath, tempDir string, dispatch Dispatch) (IncrementalAnalysis, error) {
	sniff, err := format.Sniff(p.Registry, newSourcePath, format.DefaultPrefixSize)
	if err != nil {
		return IncrementalAnalysis{}, err
	}
	strm, ok := dispatch[sniff.Descriptor.ID]
	if !ok {
		return IncrementalAnalysis{}, coreerr.New(coreerr.CodeUnrecognizedFormat, "no parser registered for "+sniff.Descriptor.ID)
	}

	stg, err := staging.New(ctx, tempDir, newSourcePath)
	if err != nil {
		return IncrementalAnalysis{}, err
	}
	defer func() {
		stg.Close()
		store.Delete(stg.Path)
	}()
	if err := stg.Ingest(ctx, strm, newSourcePath); err != nil {
		return IncrementalAnalysis{}, coreerr.Wrap(coreerr.CodeParse, err, "parse incremental source")
	}

	dbPath, err := p.sessionDBPath(sessionID)
	if err != nil {
		return IncrementalAnalysis{}, err
	}
	sess, err := store.Open(ctx, dbPath)
	if err != nil {
		return IncrementalAnalysis{}, err
	}
	defer sess.Close()

	existing, err := existingKeys(ctx, sess.DB)
	if err != nil {
		return IncrementalAnalysis{}, err
	}
	staged, err := readStaged(ctx, stg)
	if err != nil {
		return IncrementalAnalysis{}, err
	}

	var result IncrementalAnalysis
	result.Total = int64(len(staged))
	for _, s := range staged {
		if existing[s.key] {
			result.Duplicate++
		} else {
			result.New++
		}
	}
	return result, nil
}

// Incremental parses newSourcePath into staging, then copies only the
// messages whose dedup key is absent from the session, preserving the
// session's monotone id sequence, and updates nickname history for any
// newly observed names (§4.5). It does not regenerate the session index;
// callers do that afterward through query.Engine.GenerateIndex, per §4.5
// "Post-import the session-index is regenerated."
func (p *Pipeline) Incremental(ctx context.Context, sessionID, newSourcePath, tempDir string, dispatch Dispatch) (Result, error) {
	sniff, err := format.Sniff(p.Registry, newSourcePath, format.DefaultPrefixSize)
	if err != nil {
		return Result{}, err
	}
	strm, ok := dispatch[sniff.Descriptor.ID]
	if !ok {
		return Result{}, coreerr.New(coreerr.CodeUnrecognizedFormat, "no parser registered for "+sniff.Descriptor.ID)
	}

	stg, err := staging.New(ctx, tempDir, newSourcePath)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		stg.Close()
		store.Delete(stg.Path)
	}()
	if err := stg.Ingest(ctx, strm, newSourcePath); err != nil {
		return Result{}, coreerr.Wrap(coreerr.CodeParse, err, "parse incremental source")
	}

	dbPath, err := p.sessionDBPath(sessionID)
	if err != nil {
		return Result{}, err
	}
	sess, err := store.Open(ctx, dbPath)
	if err != nil {
		return Result{}, err
	}
	defer sess.Close()

	existing, err := existingKeys(ctx, sess.DB)
	if err != nil {
		return Result{}, err
	}
	staged, err := readStaged(ctx, stg)
	if err != nil {
		return Result{}, err
	}

	memberIDs, err := loadMemberIDs(ctx, sess.DB)
	if err != nil {
		return Result{}, err
	}

	tracker := newNicknameTracker()
	tx, err := sess.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "begin incremental tx")
	}
	defer tx.Rollback()

	var inserted int64
	for _, s := range staged {
		if existing[s.key] {
			continue
		}
		existing[s.key] = true // a duplicate within the same new source collapses too

		senderID, ok := memberIDs[s.platformID]
		if !ok {
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO member(platform_id, account_name, group_nickname, aliases) VALUES (?,?,?,'[]')
				 ON CONFLICT(platform_id) DO UPDATE SET account_name=member.account_name
				 RETURNING id`,
				s.platformID, s.account, s.nick,
			).Scan(&senderID); err != nil {
				return Result{}, errors.Wrap(err, "ensure member for incremental message")
			}
			memberIDs[s.platformID] = senderID
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message(sender_id, sender_account_name, sender_group_nickname, ts, type, content)
			 VALUES (?,?,?,?,?,?)`,
			senderID, s.account, s.nick, s.ts, s.typ, s.content,
		); err != nil {
			return Result{}, errors.Wrap(err, "insert incremental message")
		}
		inserted++

		if s.account != "" {
			tracker.Observe(s.platformID, model.NameAccount, s.account, s.ts)
		}
		if s.nick != "" {
			tracker.Observe(s.platformID, model.NameNickname, s.nick, s.ts)
		}
	}

	if err := appendNicknameObservations(ctx, tx, sess.DB, memberIDs, tracker); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, errors.Wrap(err, "commit incremental tx")
	}
	if err := sess.Checkpoint(ctx); err != nil {
		return Result{}, err
	}

	return Result{SessionID: sessionID, MessageCount: inserted}, nil
}

func loadMemberIDs(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT platform_id, id FROM member`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var pid string
		var id int64
		if err := rows.Scan(&pid, &id); err != nil {
			return nil, err
		}
		out[pid] = id
	}
	return out, rows.Err()
}

// appendNicknameObservations merges newly observed names onto each
// member's existing open-ended history interval: it closes the
// previously-open entry at the new name's first-seen timestamp and opens a
// fresh one, rather than re-running full compaction, since incremental
// import must not disturb history entries already closed during the
// original bulk import (§4.5, §4.4 step 5 invariant: "at most one entry has
// open end").
func appendNicknameObservations(ctx context.Context, tx *sql.Tx, _ *sql.DB, memberIDs map[string]int64, tracker *nicknameTracker) error {
	for platformID, id := range memberIDs {
		for _, kind := range []model.NameKind{model.NameAccount, model.NameNickname} {
			var obs []observation
			if kind == model.NameAccount {
				obs = tracker.account[platformID]
			} else {
				obs = tracker.nickname[platformID]
			}
			deduped := dedupeConsecutive(obs)
			if len(deduped) == 0 {
				continue
			}
			var currentName string
			var openID sql.NullInt64
			err := tx.QueryRowContext(ctx,
				`SELECT id, name FROM member_name_history WHERE member_id = ? AND name_type = ? AND end_ts IS NULL`,
				id, string(kind),
			).Scan(&openID, &currentName)
			hasOpen := err == nil

			for _, o := range deduped {
				if hasOpen && o.name == currentName {
					continue
				}
				if hasOpen {
					if _, err := tx.ExecContext(ctx,
						`UPDATE member_name_history SET end_ts = ? WHERE id = ?`, o.start, openID.Int64,
					); err != nil {
						return errors.Wrap(err, "close prior name history entry")
					}
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO member_name_history(member_id, name_type, name, start_ts, end_ts) VALUES (?,?,?,?,NULL)`,
					id, string(kind), o.name, o.start,
				); err != nil {
					return errors.Wrap(err, "insert appended name history entry")
				}
				currentName = o.name
				hasOpen = true
			}
			col := "account_name"
			if kind == model.NameNickname {
				col = "group_nickname"
			}
			if _, err := tx.ExecContext(ctx, `UPDATE member SET `+col+` = ? WHERE id = ?`, currentName, id); err != nil {
				return errors.Wrap(err, "update member latest name")
			}
		}
	}
	return nil
}

func (p *Pipeline) sessionDBPath(sessionID string) (string, error) {
	if sessionID == "" {
		return "", coreerr.New(coreerr.CodeNotFound, "empty session id")
	}
	return filepath.Join(p.StoreDir, sessionID+".db"), nil
}
