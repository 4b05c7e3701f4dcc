package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chatlab/chatlab-core/internal/model"
)

// Bucket is one (label, count) pair, the common shape returned by every
// distribution query (§6.4 "query.hourly" et al).
type Bucket struct {
	Label string
	Count int64
}

// TimeRange is msg's earliest/latest timestamp, or a nil pair when the
// filter matches nothing (§8 "inputs with zero messages ... null from
// timeRange").
type TimeRange struct {
	Start *int64
	End   *int64
}

// AvailableYears returns every calendar year (local time zone, per §8) that
// has at least one matching message (§8 "yearly(f) reports only years for
// which at least one message exists").
func (e *Engine) AvailableYears(ctx context.Context, f model.Filter) ([]int, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := fmt.Sprintf(`SELECT DISTINCT CAST(strftime('%%Y', m.ts, 'unixepoch', 'localtime') AS INTEGER)
		FROM message m %s ORDER BY 1`, clause)
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// MemberActivity reports each member's message count and share of the
// filtered total, descending by count (§8 scenario: "memberActivity returns
// one entry at 100%" for a single-member single-message import).
type MemberActivityEntry struct {
	MemberID      int64
	AccountName   string
	GroupNickname string
	Count         int64
	Percentage    float64
}

func (e *Engine) MemberActivity(ctx context.Context, f model.Filter) ([]MemberActivityEntry, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := fmt.Sprintf(`SELECT m.sender_id, mb.account_name, mb.group_nickname, COUNT(*)
		FROM message m JOIN member mb ON mb.id = m.sender_id %s
		GROUP BY m.sender_id ORDER BY COUNT(*) DESC`, clause)
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []MemberActivityEntry
	var total int64
	for rows.Next() {
		var en MemberActivityEntry
		if err := rows.Scan(&en.MemberID, &en.AccountName, &en.GroupNickname, &en.Count); err != nil {
			return nil, err
		}
		entries = append(entries, en)
		total += en.Count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if total == 0 {
		return entries, nil
	}
	for i := range entries {
		entries[i].Percentage = 100 * float64(entries[i].Count) / float64(total)
	}
	return entries, nil
}

func (e *Engine) bucketByStrftime(ctx context.Context, f model.Filter, format string) ([]Bucket, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := fmt.Sprintf(`SELECT strftime('%s', m.ts, 'unixepoch', 'localtime') AS label, COUNT(*)
		FROM message m %s GROUP BY label ORDER BY label`, format, clause)
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Hourly buckets by local hour 00-23 (§6.4 "query.hourly").
func (e *Engine) Hourly(ctx context.Context, f model.Filter) ([]Bucket, error) {
	return e.bucketByStrftime(ctx, f, "%H")
}

// Daily buckets by local calendar date (§6.4 "query.daily" — the "daily
// trend" series).
func (e *Engine) Daily(ctx context.Context, f model.Filter) ([]Bucket, error) {
	return e.bucketByStrftime(ctx, f, "%Y-%m-%d")
}

// Weekday buckets 1-7 with SQLite's native 0 (Sunday) remapped to 7 (§8
// "weekday zero from the native calendar maps to 7").
func (e *Engine) Weekday(ctx context.Context, f model.Filter) ([]Bucket, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := fmt.Sprintf(`SELECT CASE CAST(strftime('%%w', m.ts, 'unixepoch', 'localtime') AS INTEGER)
			WHEN 0 THEN 7 ELSE CAST(strftime('%%w', m.ts, 'unixepoch', 'localtime') AS INTEGER) END AS label,
		COUNT(*) FROM message m %s GROUP BY label ORDER BY label`, clause)
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var wd int
		var c int64
		if err := rows.Scan(&wd, &c); err != nil {
			return nil, err
		}
		out = append(out, Bucket{Label: fmt.Sprint(wd), Count: c})
	}
	return out, rows.Err()
}

// Monthly buckets by local year-month (§6.4 "query.monthly").
func (e *Engine) Monthly(ctx context.Context, f model.Filter) ([]Bucket, error) {
	return e.bucketByStrftime(ctx, f, "%Y-%m")
}

// Yearly buckets by local year, only emitting years with >= 1 message (§8).
func (e *Engine) Yearly(ctx context.Context, f model.Filter) ([]Bucket, error) {
	return e.bucketByStrftime(ctx, f, "%Y")
}

// LengthDistribution buckets message content length into fixed bands.
func (e *Engine) LengthDistribution(ctx context.Context, f model.Filter) ([]Bucket, error) {
	w := newWhere().withFilter(f).excludeSystem().add("m.content IS NOT NULL")
	clause, args := w.sql()
	query := fmt.Sprintf(`SELECT
		CASE
			WHEN LENGTH(m.content) <= 5 THEN '1-5'
			WHEN LENGTH(m.content) <= 20 THEN '6-20'
			WHEN LENGTH(m.content) <= 50 THEN '21-50'
			WHEN LENGTH(m.content) <= 100 THEN '51-100'
			ELSE '100+'
		END AS label,
		COUNT(*)
		FROM message m %s GROUP BY label`, clause)
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// TypeDistribution buckets by message type enum value (§6.4
// "query.typeDistribution").
func (e *Engine) TypeDistribution(ctx context.Context, f model.Filter) ([]Bucket, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := fmt.Sprintf(`SELECT m.type, COUNT(*) FROM message m %s GROUP BY m.type ORDER BY m.type`, clause)
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var t int
		var c int64
		if err := rows.Scan(&t, &c); err != nil {
			return nil, err
		}
		out = append(out, Bucket{Label: model.Normalize(t).String(), Count: c})
	}
	return out, rows.Err()
}

// TimeRange returns the filtered min/max timestamp, or a nil pair for an
// empty result set (§8).
func (e *Engine) TimeRange(ctx context.Context, f model.Filter) (TimeRange, error) {
	w := newWhere().withFilter(f).excludeSystem()
	clause, args := w.sql()
	query := fmt.Sprintf(`SELECT MIN(m.ts), MAX(m.ts) FROM message m %s`, clause)
	var start, end sql.NullInt64
	if err := e.DB.QueryRowContext(ctx, query, args...).Scan(&start, &end); err != nil {
		return TimeRange{}, err
	}
	var tr TimeRange
	if start.Valid {
		v := start.Int64
		tr.Start = &v
	}
	if end.Valid {
		v := end.Int64
		tr.End = &v
	}
	return tr, nil
}
