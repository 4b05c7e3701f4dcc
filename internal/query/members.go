package query

import (
	"context"
	"encoding/json"

	"github.com/chatlab/chatlab-core/internal/model"
)

// Members lists every member row (§6.4 "member.list").
func (e *Engine) Members(ctx context.Context) ([]model.Member, error) {
	rows, err := e.DB.QueryContext(ctx, `SELECT id, platform_id, account_name, group_nickname, aliases, avatar FROM member`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Member
	for rows.Next() {
		var m model.Member
		var aliasesJSON string
		if err := rows.Scan(&m.ID, &m.PlatformID, &m.AccountName, &m.GroupNickname, &aliasesJSON, &m.Avatar); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(aliasesJSON), &m.Aliases)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateAliases replaces a member's alias list (§6.4 "member.updateAliases").
func (e *Engine) UpdateAliases(ctx context.Context, memberID int64, aliases []string) error {
	if aliases == nil {
		aliases = []string{}
	}
	data, err := json.Marshal(aliases)
	if err != nil {
		return err
	}
	_, err = e.DB.ExecContext(ctx, `UPDATE member SET aliases = ? WHERE id = ?`, string(data), memberID)
	return err
}

// DeleteMember removes a member row; messages already persisted keep their
// sender_id as a dangling reference, since a session's message history is
// never rewritten to fabricate a different author (§6.4 "member.delete").
func (e *Engine) DeleteMember(ctx context.Context, memberID int64) error {
	_, err := e.DB.ExecContext(ctx, `DELETE FROM member WHERE id = ?`, memberID)
	return err
}

// NameHistory returns every recorded name interval for a member, ordered by
// start time (§6.4 "member.nameHistory").
func (e *Engine) NameHistory(ctx context.Context, memberID int64) ([]model.NameHistoryEntry, error) {
	rows, err := e.DB.QueryContext(ctx,
		`SELECT id, member_id, name_type, name, start_ts, end_ts FROM member_name_history WHERE member_id = ? ORDER BY start_ts`,
		memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.NameHistoryEntry
	for rows.Next() {
		var en model.NameHistoryEntry
		var endTs *int64
		if err := rows.Scan(&en.ID, &en.MemberID, &en.Kind, &en.Name, &en.Start, &endTs); err != nil {
			return nil, err
		}
		if endTs != nil {
			en.End = *endTs
		} else {
			en.Open = true
		}
		out = append(out, en)
	}
	return out, rows.Err()
}
