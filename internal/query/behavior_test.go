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

// newBehaviorTestEngine seeds one store exercising every run-detection and
// regex-extraction shape behavior.go implements: a 3-message repeat chain
// (§6.4 "query.repeat"), a 5-message single-sender monologue run
// (§6.4 "query.monologue"), a 4-message two-sender meme-spam run
// (§6.4 "query.memeBattle"), an @mention (§6.4 "query.mention"/
// "query.mentionGraph"), and a check-in marker (§6.4 "query.checkIn").
func newBehaviorTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(ctx))

	_, err = s.DB.ExecContext(ctx, `INSERT INTO member(id, platform_id, account_name) VALUES
		(1, 'u1', 'Alice'), (2, 'u2', 'Bob'), (3, 'u3', 'Carol')`)
	require.NoError(t, err)

	insert := `INSERT INTO message(sender_id, sender_account_name, sender_group_nickname, ts, type, content)
		VALUES (?,?,?,?,?,?)`
	rows := []struct {
		sender  int64
		account string
		ts      int64
		typ     model.MessageType
		content string
	}{
		{1, "Alice", 100, model.MessageText, "hello"},
		// a repeat chain: 3 consecutive identical-content messages from 2 senders
		{1, "Alice", 200, model.MessageText, "haha"},
		{2, "Bob", 201, model.MessageText, "haha"},
		{1, "Alice", 202, model.MessageText, "haha"},
		// Carol's uninterrupted 5-message monologue run
		{3, "Carol", 300, model.MessageText, "msg1"},
		{3, "Carol", 301, model.MessageText, "msg2"},
		{3, "Carol", 302, model.MessageText, "msg3"},
		{3, "Carol", 303, model.MessageText, "msg4"},
		{3, "Carol", 304, model.MessageText, "msg5"},
		// a 4-message, 2-sender meme battle (image/emoji, gaps well under 120s)
		{1, "Alice", 400, model.MessageImage, ""},
		{2, "Bob", 401, model.MessageImage, ""},
		{1, "Alice", 402, model.MessageEmoji, ""},
		{2, "Bob", 403, model.MessageEmoji, ""},
		// an @mention from Alice naming Bob
		{1, "Alice", 500, model.MessageText, "@Bob thanks for that"},
		// a check-in from Bob
		{2, "Bob", 600, model.MessageText, "打卡"},
	}
	for _, r := range rows {
		_, err := s.DB.ExecContext(ctx, insert, r.sender, r.account, "", r.ts, int(r.typ), r.content)
		require.NoError(t, err)
	}
	return New(s)
}

func TestRepeatFindsMultiSenderChain(t *testing.T) {
	e := newBehaviorTestEngine(t)
	chains, err := e.Repeat(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, "haha", chains[0].Content)
	assert.Equal(t, int64(200), chains[0].StartTs)
	assert.Equal(t, int64(202), chains[0].EndTs)
	assert.Equal(t, []int64{1, 2}, chains[0].Senders)
}

func TestRepeatIgnoresChainsShorterThanMinLength(t *testing.T) {
	e := newBehaviorTestEngine(t)
	chains, err := e.Repeat(context.Background(), model.Filter{})
	require.NoError(t, err)
	for _, c := range chains {
		assert.NotEqual(t, "hello", c.Content)
	}
}

func TestMonologueFindsLongestUninterruptedRun(t *testing.T) {
	e := newBehaviorTestEngine(t)
	runs, err := e.Monologue(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	// sorted descending by length; Carol's 5-message run is the longest in
	// the whole scan (Alice's longest uninterrupted run is 2, ts 100-200).
	assert.Equal(t, int64(3), runs[0].MemberID)
	assert.Equal(t, 5, runs[0].Length)
	assert.Equal(t, int64(300), runs[0].StartTs)
	assert.Equal(t, int64(304), runs[0].EndTs)
}

func TestMemeBattleFindsMultiSenderImageRun(t *testing.T) {
	e := newBehaviorTestEngine(t)
	battles, err := e.MemeBattle(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.Equal(t, int64(400), battles[0].StartTs)
	assert.Equal(t, int64(403), battles[0].EndTs)
	assert.Equal(t, 4, battles[0].Length)
	assert.Equal(t, []int64{1, 2}, battles[0].Senders)
}

func TestMemeBattleRequiresAtLeastTwoSenders(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(ctx))
	_, err = s.DB.ExecContext(ctx, `INSERT INTO member(id, platform_id, account_name) VALUES (1, 'u1', 'Alice')`)
	require.NoError(t, err)
	insert := `INSERT INTO message(sender_id, sender_account_name, sender_group_nickname, ts, type, content) VALUES (?,?,?,?,?,?)`
	for i, ts := range []int64{100, 101, 102, 103} {
		_, err := s.DB.ExecContext(ctx, insert, 1, "Alice", "", ts, int(model.MessageImage), "")
		require.NoError(t, err, i)
	}
	e := New(s)
	battles, err := e.MemeBattle(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Empty(t, battles, "a single-sender run is a slideshow, not a meme battle")
}

func TestMentionTalliesByMentionedName(t *testing.T) {
	e := newBehaviorTestEngine(t)
	mentions, err := e.Mention(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "Bob", mentions[0].Name)
	assert.Equal(t, int64(1), mentions[0].Count)
}

func TestMentionGraphBuildsDirectedEdge(t *testing.T) {
	e := newBehaviorTestEngine(t)
	edges, err := e.MentionGraph(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(1), edges[0].FromMemberID)
	assert.Equal(t, "Bob", edges[0].ToName)
	assert.Equal(t, int64(1), edges[0].Count)
}

func TestCheckInMatchesKeywordPattern(t *testing.T) {
	e := newBehaviorTestEngine(t)
	entries, err := e.CheckIn(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].MemberID)
	assert.NotEmpty(t, entries[0].Day)
}

func TestCheckInDedupesSameMemberSameDay(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(ctx))
	_, err = s.DB.ExecContext(ctx, `INSERT INTO member(id, platform_id, account_name) VALUES (1, 'u1', 'Alice')`)
	require.NoError(t, err)
	insert := `INSERT INTO message(sender_id, sender_account_name, sender_group_nickname, ts, type, content) VALUES (?,?,?,?,?,?)`
	_, err = s.DB.ExecContext(ctx, insert, 1, "Alice", "", 100, int(model.MessageText), "打卡")
	require.NoError(t, err)
	_, err = s.DB.ExecContext(ctx, insert, 1, "Alice", "", 200, int(model.MessageText), "打卡 again")
	require.NoError(t, err)

	e := New(s)
	entries, err := e.CheckIn(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "same member, same local day, counts once")
}
