// Package query implements the read-only analysis surface (§6.4
// "query.*"/"msg.*" groups): every operation is one parameterized SQL
// statement run through the store's existing *sql.DB handle, composed from
// a small WHERE-clause builder rather than ad hoc string concatenation, so
// a filter's three independent fields (time range, member) stay orthogonal
// no matter which aggregate consumes them.
package query

import (
	"context"
	"database/sql"
	"strings"

	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/store"
)

// Engine is a bound query surface over one open session store.
type Engine struct {
	DB *sql.DB
}

func New(s *store.Store) *Engine { return &Engine{DB: s.DB} }

// whereClause renders f's non-nil fields as a conjunction of placeholder
// comparisons against message columns, always excluding the system-author
// sentinel from human-facing aggregates (§4.7, §9 "system messages are
// excluded from human-facing aggregates by sender_account_name").
type whereBuilder struct {
	clauses []string
	args    []any
}

func newWhere() *whereBuilder { return &whereBuilder{} }

func (b *whereBuilder) add(clause string, args ...any) *whereBuilder {
	b.clauses = append(b.clauses, clause)
	b.args = append(b.args, args...)
	return b
}

func (b *whereBuilder) withFilter(f model.Filter) *whereBuilder {
	if f.StartTs != nil {
		b.add("m.ts >= ?", *f.StartTs)
	}
	if f.EndTs != nil {
		b.add("m.ts <= ?", *f.EndTs)
	}
	if f.MemberID != nil {
		b.add("m.sender_id = ?", *f.MemberID)
	}
	return b
}

func (b *whereBuilder) excludeSystem() *whereBuilder {
	return b.add("m.sender_account_name != ?", model.SystemAuthorExclusion)
}

func (b *whereBuilder) sql() (string, []any) {
	if len(b.clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(b.clauses, " AND "), b.args
}

func (e *Engine) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return e.DB.QueryRowContext(ctx, query, args...)
}
