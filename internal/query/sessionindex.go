package query

import (
	"context"
	"database/sql"

	"github.com/chatlab/chatlab-core/internal/model"
)

const defaultGapThreshold = 1800

// GenerateIndex rebuilds session_index from scratch: messages are split
// into contiguous runs wherever the gap between consecutive timestamps
// exceeds the session's gap_threshold (§3 "Session-index entry", §6.4
// "session.generateIndex").
func (e *Engine) GenerateIndex(ctx context.Context, now int64) error {
	gap, err := e.gapThreshold(ctx)
	if err != nil {
		return err
	}
	rows, err := e.DB.QueryContext(ctx, `SELECT id, ts FROM message ORDER BY ts, id`)
	if err != nil {
		return err
	}
	type msgRow struct {
		id int64
		ts int64
	}
	var all []msgRow
	for rows.Next() {
		var r msgRow
		if err := rows.Scan(&r.id, &r.ts); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_index`); err != nil {
		return err
	}

	i := 0
	for i < len(all) {
		j := i + 1
		for j < len(all) && all[j].ts-all[j-1].ts <= gap {
			j++
		}
		entry := model.SessionIndexEntry{
			StartTs:    all[i].ts,
			EndTs:      all[j-1].ts,
			Count:      int64(j - i),
			FirstMsgID: all[i].id,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_index(start_ts, end_ts, count, first_message_id) VALUES (?,?,?,?)`,
			entry.StartTs, entry.EndTs, entry.Count, entry.FirstMsgID,
		); err != nil {
			return err
		}
		i = j
	}

	if _, err := tx.ExecContext(ctx, `UPDATE session_index_meta SET built_at = ?`, now); err != nil {
		return err
	}
	return tx.Commit()
}

// HasIndex reports whether session_index has ever been built (§6.4
// "session.hasIndex").
func (e *Engine) HasIndex(ctx context.Context) (bool, error) {
	var builtAt sql.NullInt64
	err := e.DB.QueryRowContext(ctx, `SELECT built_at FROM session_index_meta LIMIT 1`).Scan(&builtAt)
	if err != nil {
		return false, err
	}
	return builtAt.Valid, nil
}

// IndexStats returns the number of entries currently in session_index
// (§6.4 "session.indexStats").
func (e *Engine) IndexStats(ctx context.Context) (int64, error) {
	var count int64
	err := e.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_index`).Scan(&count)
	return count, err
}

// ClearIndex drops every session_index row and resets built_at (§6.4
// "session.clearIndex").
func (e *Engine) ClearIndex(ctx context.Context) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_index`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE session_index_meta SET built_at = NULL`); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateGapThreshold changes the session's gap threshold in seconds (§6.4
// "session.updateGapThreshold"); callers should regenerate the index
// afterward since existing entries no longer reflect the new threshold.
func (e *Engine) UpdateGapThreshold(ctx context.Context, seconds int64) error {
	_, err := e.DB.ExecContext(ctx, `UPDATE session_index_meta SET gap_threshold = ?`, seconds)
	return err
}

func (e *Engine) gapThreshold(ctx context.Context) (int64, error) {
	var gap sql.NullInt64
	err := e.DB.QueryRowContext(ctx, `SELECT gap_threshold FROM session_index_meta LIMIT 1`).Scan(&gap)
	if err != nil {
		return defaultGapThreshold, err
	}
	if !gap.Valid {
		return defaultGapThreshold, nil
	}
	return gap.Int64, nil
}
