package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/model"
)

// ReadMeta loads the single meta row (§3 "Session"). owner_id is read as a
// nullable column since it is absent until the first owner-assignment, or
// on a store still pending the meta.owner_id migration.
func (s *Store) ReadMeta(ctx context.Context) (model.Meta, string, error) {
	var m model.Meta
	var groupID, groupAvatar, ownerID sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT name, platform, type, imported_at, group_id, group_avatar, owner_id FROM meta LIMIT 1`,
	).Scan(&m.Name, &m.Platform, &m.Kind, &m.ImportedAt, &groupID, &groupAvatar, &ownerID)
	if err != nil {
		return model.Meta{}, "", coreerr.Wrap(coreerr.CodeIO, err, "read meta")
	}
	m.GroupID = groupID.String
	m.GroupAvatar = groupAvatar.String
	return m, ownerID.String, nil
}

// Rename updates the session's display name (§3 "mutated only by rename
// and owner-assignment").
func (s *Store) Rename(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE meta SET name = ?`, name)
	return errors.Wrap(err, "rename session")
}

// UpdateOwnerID sets the member platform id that identifies "self" within
// this session (§3 "owner-assignment").
func (s *Store) UpdateOwnerID(ctx context.Context, ownerID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE meta SET owner_id = ?`, ownerID)
	return errors.Wrap(err, "update owner id")
}

// MessageCount returns the total row count, used to populate the
// sessioncache summary on import/rename/owner-assignment.
func (s *Store) MessageCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM message`).Scan(&n)
	return n, errors.Wrap(err, "count messages")
}
