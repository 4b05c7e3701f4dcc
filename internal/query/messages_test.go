package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(ctx))

	_, err = s.DB.ExecContext(ctx, `INSERT INTO member(id, platform_id, account_name) VALUES (1, 'u1', 'Alice'), (2, 'u2', 'Bob')`)
	require.NoError(t, err)

	insert := `INSERT INTO message(sender_id, sender_account_name, sender_group_nickname, ts, type, content) VALUES (?,?,?,?,?,?)`
	rows := []struct {
		sender  int64
		account string
		ts      int64
		content string
	}{
		{1, "Alice", 100, "hello"},
		{2, "Bob", 200, "hi there"},
		{1, "Alice", 300, "keyword match"},
		{2, "Bob", 400, "bye"},
	}
	for _, r := range rows {
		_, err := s.DB.ExecContext(ctx, insert, r.sender, r.account, "", r.ts, int(model.MessageText), r.content)
		require.NoError(t, err)
	}
	return New(s)
}

func TestBeforeReturnsDescendingIDOrderWithHasMore(t *testing.T) {
	e := newTestEngine(t)
	page, err := e.Before(context.Background(), 4, 2, model.Filter{}, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Greater(t, page.Messages[0].ID, page.Messages[1].ID)
	assert.Equal(t, "keyword match", *page.Messages[0].Content)
	assert.True(t, page.HasMore, "a 4th message (id 1) exists below the returned page")
}

func TestAfterFiltersByMemberID(t *testing.T) {
	e := newTestEngine(t)
	memberID := int64(1)
	page, err := e.After(context.Background(), 0, 10, model.Filter{MemberID: &memberID}, nil)
	require.NoError(t, err)
	for _, m := range page.Messages {
		assert.Equal(t, int64(1), m.SenderID)
	}
	assert.Len(t, page.Messages, 2)
}

func TestSearchMatchesKeyword(t *testing.T) {
	e := newTestEngine(t)
	msgs, err := e.Search(context.Background(), model.Filter{}, []string{"keyword"}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "keyword match", *msgs[0].Content)
}

func TestRecentReturnsAscendingOrder(t *testing.T) {
	e := newTestEngine(t)
	msgs, err := e.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Less(t, msgs[0].Timestamp, msgs[1].Timestamp)
}

func TestContextWindowIncludesCenter(t *testing.T) {
	e := newTestEngine(t)
	all, err := e.Between(context.Background(), 1, 100)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	centerID := all[len(all)/2].ID

	window, err := e.Context(context.Background(), centerID, 1)
	require.NoError(t, err)

	var found bool
	for _, m := range window {
		if m.ID == centerID {
			found = true
		}
	}
	assert.True(t, found)
}
