package query

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chatlab/chatlab-core/internal/model"
)

// row is the shared shape every behavioral analysis scans over: a message's
// timestamp, sender and content, read back in timestamp order.
type row struct {
	ts       int64
	senderID int64
	account  string
	content  string
}

func (e *Engine) scan(ctx context.Context, f model.Filter) ([]row, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := `SELECT m.ts, m.sender_id, m.sender_account_name, COALESCE(m.content, '')
		FROM message m ` + clause + ` ORDER BY m.ts, m.id`
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ts, &r.senderID, &r.account, &r.content); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepeatChain is one run of >= minRepeatChainLength consecutive messages sharing
// identical content from >= 2 distinct senders — a "repeat" in group-chat
// parlance, where members echo whatever was last said.
type RepeatChain struct {
	Content   string
	StartTs   int64
	EndTs     int64
	Senders   []int64
}

const minRepeatChainLength = 3

// Repeat finds every maximal repeat chain (§6.4 "query.repeat").
func (e *Engine) Repeat(ctx context.Context, f model.Filter) ([]RepeatChain, error) {
	rows, err := e.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	var chains []RepeatChain
	i := 0
	for i < len(rows) {
		j := i + 1
		for j < len(rows) && rows[j].content == rows[i].content && rows[j].content != "" {
			j++
		}
		if j-i >= minRepeatChainLength {
			senders := map[int64]bool{}
			var order []int64
			for k := i; k < j; k++ {
				if !senders[rows[k].senderID] {
					senders[rows[k].senderID] = true
					order = append(order, rows[k].senderID)
				}
			}
			if len(order) >= 2 {
				chains = append(chains, RepeatChain{
					Content: rows[i].content,
					StartTs: rows[i].ts,
					EndTs:   rows[j-1].ts,
					Senders: order,
				})
			}
		}
		i = j
	}
	return chains, nil
}

// CatchphraseEntry is a member's most repeated exact message content.
type CatchphraseEntry struct {
	MemberID int64
	Content  string
	Count    int64
}

// Catchphrase returns, per member, their single most frequently repeated
// exact message content (§6.4 "query.catchphrase"), skipping members whose
// top content was said only once.
func (e *Engine) Catchphrase(ctx context.Context, f model.Filter, topN int) ([]CatchphraseEntry, error) {
	w := newWhere().withFilter(f).excludeSystem().add("m.content IS NOT NULL AND m.content != ''")
	clause, args := w.sql()
	query := `SELECT m.sender_id, m.content, COUNT(*) c FROM message m ` + clause + `
		GROUP BY m.sender_id, m.content HAVING c > 1 ORDER BY m.sender_id, c DESC`
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	best := map[int64]CatchphraseEntry{}
	for rows.Next() {
		var en CatchphraseEntry
		if err := rows.Scan(&en.MemberID, &en.Content, &en.Count); err != nil {
			return nil, err
		}
		if existing, ok := best[en.MemberID]; !ok || en.Count > existing.Count {
			best[en.MemberID] = en
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]CatchphraseEntry, 0, len(best))
	for _, en := range best {
		out = append(out, en)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// NightOwlEntry ranks members by the share of their messages sent between
// 00:00 and 06:00 local time.
type NightOwlEntry struct {
	MemberID   int64
	NightCount int64
	Total      int64
	Ratio      float64
}

const nightOwlEndHour = 6

// NightOwl ranks active night senders (§6.4 "query.nightOwl").
func (e *Engine) NightOwl(ctx context.Context, f model.Filter) ([]NightOwlEntry, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := `SELECT m.sender_id,
		SUM(CASE WHEN CAST(strftime('%H', m.ts, 'unixepoch', 'localtime') AS INTEGER) < ? THEN 1 ELSE 0 END),
		COUNT(*)
		FROM message m ` + clause + ` GROUP BY m.sender_id`
	allArgs := append([]any{nightOwlEndHour}, args...)
	rows, err := e.DB.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NightOwlEntry
	for rows.Next() {
		var en NightOwlEntry
		if err := rows.Scan(&en.MemberID, &en.NightCount, &en.Total); err != nil {
			return nil, err
		}
		if en.Total > 0 {
			en.Ratio = float64(en.NightCount) / float64(en.Total)
		}
		out = append(out, en)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	return out, rows.Err()
}

// DragonKingEntry is how many calendar days a member posted the single
// highest message count ("dragon king" of the day).
type DragonKingEntry struct {
	MemberID int64
	Days     int64
}

// DragonKing ranks members by the number of days they were the top poster
// (§6.4 "query.dragonKing").
func (e *Engine) DragonKing(ctx context.Context, f model.Filter) ([]DragonKingEntry, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := `SELECT strftime('%Y-%m-%d', m.ts, 'unixepoch', 'localtime') AS day, m.sender_id, COUNT(*) c
		FROM message m ` + clause + ` GROUP BY day, m.sender_id`
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	type best struct {
		sender int64
		count  int64
	}
	byDay := map[string]best{}
	for rows.Next() {
		var day string
		var sender, count int64
		if err := rows.Scan(&day, &sender, &count); err != nil {
			return nil, err
		}
		if b, ok := byDay[day]; !ok || count > b.count {
			byDay[day] = best{sender: sender, count: count}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	tally := map[int64]int64{}
	for _, b := range byDay {
		tally[b.sender]++
	}
	out := make([]DragonKingEntry, 0, len(tally))
	for id, days := range tally {
		out = append(out, DragonKingEntry{MemberID: id, Days: days})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Days > out[j].Days })
	return out, nil
}

// DivingEntry ranks members by how rarely they post relative to the
// session's overall span — "divers" who mostly lurk.
type DivingEntry struct {
	MemberID      int64
	MessageCount  int64
	FirstTs       int64
	LastTs        int64
	AvgGapSeconds float64
}

// Diving surfaces the least active members by average gap between their
// own messages (§6.4 "query.diving").
func (e *Engine) Diving(ctx context.Context, f model.Filter) ([]DivingEntry, error) {
	rows, err := e.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	type acc struct {
		timestamps []int64
	}
	bySender := map[int64]*acc{}
	for _, r := range rows {
		a, ok := bySender[r.senderID]
		if !ok {
			a = &acc{}
			bySender[r.senderID] = a
		}
		a.timestamps = append(a.timestamps, r.ts)
	}
	out := make([]DivingEntry, 0, len(bySender))
	for id, a := range bySender {
		en := DivingEntry{MemberID: id, MessageCount: int64(len(a.timestamps))}
		if len(a.timestamps) > 0 {
			en.FirstTs = a.timestamps[0]
			en.LastTs = a.timestamps[len(a.timestamps)-1]
		}
		if len(a.timestamps) > 1 {
			span := float64(en.LastTs - en.FirstTs)
			en.AvgGapSeconds = span / float64(len(a.timestamps)-1)
		}
		out = append(out, en)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgGapSeconds > out[j].AvgGapSeconds })
	return out, nil
}

// MonologueRun is the longest unbroken streak of consecutive messages from
// a single sender with nobody else interjecting.
type MonologueRun struct {
	MemberID int64
	Length   int
	StartTs  int64
	EndTs    int64
}

// Monologue finds each member's longest self-only run (§6.4
// "query.monologue"), sorted descending by length.
func (e *Engine) Monologue(ctx context.Context, f model.Filter) ([]MonologueRun, error) {
	rows, err := e.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	best := map[int64]MonologueRun{}
	i := 0
	for i < len(rows) {
		j := i + 1
		for j < len(rows) && rows[j].senderID == rows[i].senderID {
			j++
		}
		length := j - i
		run := MonologueRun{MemberID: rows[i].senderID, Length: length, StartTs: rows[i].ts, EndTs: rows[j-1].ts}
		if existing, ok := best[run.MemberID]; !ok || run.Length > existing.Length {
			best[run.MemberID] = run
		}
		i = j
	}
	out := make([]MonologueRun, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Length > out[j].Length })
	return out, nil
}

var mentionPattern = regexp.MustCompile(`@([^\s@,，。！？]{1,32})`)

// MentionEntry counts how many times a name string appears as an @mention
// across the filtered message set.
type MentionEntry struct {
	Name  string
	Count int64
}

// Mention tallies @mentions by the mentioned name (§6.4 "query.mention").
func (e *Engine) Mention(ctx context.Context, f model.Filter) ([]MentionEntry, error) {
	rows, err := e.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, r := range rows {
		for _, m := range mentionPattern.FindAllStringSubmatch(r.content, -1) {
			counts[m[1]]++
		}
	}
	out := make([]MentionEntry, 0, len(counts))
	for name, c := range counts {
		out = append(out, MentionEntry{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// MentionEdge is one (from, to) @mention edge with its occurrence count.
type MentionEdge struct {
	FromMemberID int64
	ToName       string
	Count        int64
}

// MentionGraph builds the directed who-mentions-whom graph (§6.4
// "query.mentionGraph"), distinct from Mention's flat per-name tally.
func (e *Engine) MentionGraph(ctx context.Context, f model.Filter) ([]MentionEdge, error) {
	rows, err := e.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	type key struct {
		from int64
		to   string
	}
	counts := map[key]int64{}
	for _, r := range rows {
		for _, m := range mentionPattern.FindAllStringSubmatch(r.content, -1) {
			counts[key{from: r.senderID, to: m[1]}]++
		}
	}
	out := make([]MentionEdge, 0, len(counts))
	for k, c := range counts {
		out = append(out, MentionEdge{FromMemberID: k.from, ToName: k.to, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

var laughMarkers = []string{"哈哈", "233", "lol", "lmao", "笑死", "🤣", "😂"}

// Laugh counts, per member, how many messages contain a laugh marker
// (§6.4 "query.laugh").
func (e *Engine) Laugh(ctx context.Context, f model.Filter) ([]Bucket, error) {
	rows, err := e.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	counts := map[int64]int64{}
	for _, r := range rows {
		lower := strings.ToLower(r.content)
		for _, marker := range laughMarkers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				counts[r.senderID]++
				break
			}
		}
	}
	out := make([]Bucket, 0, len(counts))
	for id, c := range counts {
		out = append(out, Bucket{Label: idLabel(id), Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// MemeBattle is one run of >= minMemeBattleLength consecutive image/emoji
// messages from >= 2 distinct senders — group chats call this a "meme
// war". Only image/emoji messages are read, so text sent between them does
// not break a run; a gap longer than the run window does.
type MemeBattle struct {
	StartTs int64
	EndTs   int64
	Senders []int64
	Length  int
}

const minMemeBattleLength = 4

// MemeBattle finds every meme-spam run (§6.4 "query.memeBattle").
func (e *Engine) MemeBattle(ctx context.Context, f model.Filter) ([]MemeBattle, error) {
	w := newWhere().withFilter(f).excludeSystem().add("m.type IN (?, ?)", int(model.MessageImage), int(model.MessageEmoji))
	clause, args := w.sql()
	query := `SELECT m.ts, m.sender_id FROM message m ` + clause + ` ORDER BY m.ts, m.id`
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	type memeRow struct {
		ts     int64
		sender int64
	}
	var rs []memeRow
	for rows.Next() {
		var r memeRow
		if err := rows.Scan(&r.ts, &r.sender); err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var battles []MemeBattle
	i := 0
	const maxGapSeconds = 120
	for i < len(rs) {
		j := i + 1
		for j < len(rs) && rs[j].ts-rs[j-1].ts <= maxGapSeconds {
			j++
		}
		if j-i >= minMemeBattleLength {
			senders := map[int64]bool{}
			var order []int64
			for k := i; k < j; k++ {
				if !senders[rs[k].sender] {
					senders[rs[k].sender] = true
					order = append(order, rs[k].sender)
				}
			}
			if len(order) >= 2 {
				battles = append(battles, MemeBattle{StartTs: rs[i].ts, EndTs: rs[j-1].ts, Senders: order, Length: j - i})
			}
		}
		i = j
	}
	return battles, nil
}

var checkInPattern = regexp.MustCompile(`打卡|签到|check.?in`)

// CheckInEntry is one day a member posted a check-in message.
type CheckInEntry struct {
	MemberID int64
	Day      string
}

// CheckIn finds every message matching the check-in keyword pattern
// (§6.4 "query.checkIn"), one entry per (member, day).
func (e *Engine) CheckIn(ctx context.Context, f model.Filter) ([]CheckInEntry, error) {
	w := newWhere().withFilter(f).excludeSystem().add("m.content IS NOT NULL")
	clause, args := w.sql()
	query := `SELECT m.sender_id, strftime('%Y-%m-%d', m.ts, 'unixepoch', 'localtime'), m.content
		FROM message m ` + clause
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := map[string]bool{}
	var out []CheckInEntry
	for rows.Next() {
		var sender int64
		var day, content string
		if err := rows.Scan(&sender, &day, &content); err != nil {
			return nil, err
		}
		if !checkInPattern.MatchString(content) {
			continue
		}
		key := day + "|" + idLabel(sender)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, CheckInEntry{MemberID: sender, Day: day})
	}
	return out, rows.Err()
}

func idLabel(id int64) string { return strconv.FormatInt(id, 10) }
