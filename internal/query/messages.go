package query

import (
	"context"
	"sort"
	"strings"

	"github.com/chatlab/chatlab-core/internal/model"
)

// Page is a cursor-paginated slice of messages plus whether more remain in
// the requested direction (§8 "monotonicity": before(id, n).hasMore implies
// before(id, n+1) returns at least n+1 rows).
type Page struct {
	Messages []model.Message
	HasMore  bool
}

const defaultPageSize = 50

func (e *Engine) loadMessages(ctx context.Context, clause string, args []any, limit int, ascending bool) ([]model.Message, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}
	query := `SELECT m.id, m.sender_id, m.sender_account_name, m.sender_group_nickname, m.ts, m.type, m.content
		FROM message m ` + clause + ` ORDER BY m.id ` + order
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		var msg model.Message
		var t int
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderAccount, &msg.SenderNick, &msg.Timestamp, &t, &msg.Content); err != nil {
			return nil, err
		}
		msg.Type = model.MessageType(t)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// cursorClause composes the id-boundary comparison with f's filter and an
// optional keyword OR-group onto one WHERE clause, per §4.7 "Message
// paging": "each applies the same filter plus optional sender and keyword
// OR-group". Sender selection rides on f.MemberID, already one of filter's
// three independent fields.
func cursorClause(op string, id int64, f model.Filter, keywords []string) (string, []any) {
	w := newWhere().add("m.id "+op+" ?", id).withFilter(f)
	if len(keywords) > 0 {
		var ors []string
		var args []any
		for _, kw := range keywords {
			ors = append(ors, "m.content LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(kw)+"%")
		}
		w.add("("+strings.Join(ors, " OR ")+")", args...)
	}
	return w.sql()
}

// Before returns up to n messages with id < beforeID in descending id
// order, filtered by f and (if non-empty) matching at least one keyword
// (§6.4 "msg.before", §4.7).
func (e *Engine) Before(ctx context.Context, beforeID int64, n int, f model.Filter, keywords []string) (Page, error) {
	if n <= 0 {
		n = defaultPageSize
	}
	clause, args := cursorClause("<", beforeID, f, keywords)
	msgs, err := e.loadMessages(ctx, clause, args, n+1, false)
	if err != nil {
		return Page{}, err
	}
	return paginate(msgs, n), nil
}

// After returns up to n messages with id > afterID in ascending id order,
// filtered by f and (if non-empty) matching at least one keyword (§6.4
// "msg.after", §4.7).
func (e *Engine) After(ctx context.Context, afterID int64, n int, f model.Filter, keywords []string) (Page, error) {
	if n <= 0 {
		n = defaultPageSize
	}
	clause, args := cursorClause(">", afterID, f, keywords)
	msgs, err := e.loadMessages(ctx, clause, args, n+1, true)
	if err != nil {
		return Page{}, err
	}
	return paginate(msgs, n), nil
}

// Between returns every message with startId <= id <= endId, ascending.
func (e *Engine) Between(ctx context.Context, startID, endID int64) ([]model.Message, error) {
	return e.loadMessages(ctx, "WHERE m.id BETWEEN ? AND ?", []any{startID, endID}, 0, true)
}

// Context returns n messages before and n after id, inclusive of id itself
// (§6.4 "msg.context").
func (e *Engine) Context(ctx context.Context, id int64, n int) ([]model.Message, error) {
	if n <= 0 {
		n = 10
	}
	before, err := e.loadMessages(ctx, "WHERE m.id < ?", []any{id}, n, false)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(before)-1; i < j; i, j = i+1, j-1 {
		before[i], before[j] = before[j], before[i]
	}
	center, err := e.loadMessages(ctx, "WHERE m.id = ?", []any{id}, 0, true)
	if err != nil {
		return nil, err
	}
	after, err := e.loadMessages(ctx, "WHERE m.id > ?", []any{id}, n, true)
	if err != nil {
		return nil, err
	}
	out := append(before, center...)
	out = append(out, after...)
	return out, nil
}

// Recent returns the most recent n messages in this session, ascending by
// id (§6.4 "msg.recent").
func (e *Engine) Recent(ctx context.Context, n int) ([]model.Message, error) {
	if n <= 0 {
		n = defaultPageSize
	}
	msgs, err := e.loadMessages(ctx, "", nil, n, false)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Search finds messages whose content contains every keyword in keywords,
// most recent first (§6.4 "msg.search").
func (e *Engine) Search(ctx context.Context, f model.Filter, keywords []string, limit int) ([]model.Message, error) {
	w := newWhere().withFilter(f)
	for _, kw := range keywords {
		w.add("m.content LIKE ? ESCAPE '\\'", "%"+escapeLike(kw)+"%")
	}
	clause, args := w.sql()
	if limit <= 0 {
		limit = defaultPageSize
	}
	return e.loadMessages(ctx, clause, args, limit, false)
}

// FilterWithContext applies f and returns each match with n messages of
// context on either side, one []model.Message slice per hit (§6.4
// "msg.filterWithContext").
func (e *Engine) FilterWithContext(ctx context.Context, f model.Filter, n int) ([][]model.Message, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	hits, err := e.loadMessages(ctx, clause, args, 0, true)
	if err != nil {
		return nil, err
	}
	out := make([][]model.Message, 0, len(hits))
	for _, hit := range hits {
		window, err := e.Context(ctx, hit.ID, n)
		if err != nil {
			return nil, err
		}
		out = append(out, window)
	}
	return out, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

func paginate(msgs []model.Message, n int) Page {
	hasMore := len(msgs) > n
	if hasMore {
		msgs = msgs[:n]
	}
	return Page{Messages: msgs, HasMore: hasMore}
}

// ContextMulti returns the union of [id-k, id+k] message windows across
// every seed id, deduplicated and ordered by id (§4.7 "Context window:
// given one or many message ids and a size k, returns the union of
// [id-k, id+k] rows across all seeds, deduplicated, id-ordered").
func (e *Engine) ContextMulti(ctx context.Context, ids []int64, n int) ([]model.Message, error) {
	seen := make(map[int64]model.Message)
	order := make([]int64, 0)
	for _, id := range ids {
		window, err := e.Context(ctx, id, n)
		if err != nil {
			return nil, err
		}
		for _, m := range window {
			if _, ok := seen[m.ID]; !ok {
				order = append(order, m.ID)
			}
			seen[m.ID] = m
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]model.Message, 0, len(order))
	for _, id := range order {
		out = append(out, seen[id])
	}
	return out, nil
}

// SessionMessage tags a message with the session it came from, the shape
// every multi-session fan-out operation returns (§6.4 "msg.allRecent",
// "msg.fromSessions").
type SessionMessage struct {
	SessionID string
	Message   model.Message
}

// AllRecent returns the most recent n messages from each of the given
// sessions, merge-sorted descending by timestamp (§10
// "msg.recent/msg.allRecent").
func AllRecent(ctx context.Context, engines map[string]*Engine, n int) ([]SessionMessage, error) {
	var out []SessionMessage
	for sessionID, e := range engines {
		msgs, err := e.Recent(ctx, n)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			out = append(out, SessionMessage{SessionID: sessionID, Message: m})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Message.Timestamp > out[j].Message.Timestamp })
	return out, nil
}

// FromSessions fans a keyword/time search out across several already-open
// session stores and merge-sorts the hits by timestamp ascending, grounded
// in the multi-store fan-out a sharded chat-log store needs when one
// conversation spans several per-shard databases.
func FromSessions(ctx context.Context, engines map[string]*Engine, f model.Filter, keywords []string, limit int) ([]SessionMessage, error) {
	var out []SessionMessage
	for sessionID, e := range engines {
		msgs, err := e.Search(ctx, f, keywords, limit)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			out = append(out, SessionMessage{SessionID: sessionID, Message: m})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Message.Timestamp < out[j].Message.Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
