package query

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chatlab/chatlab-core/internal/coreerr"
)

// disallowedVerbs blocks every statement that could mutate or exfiltrate
// beyond read access, per §9's raw-SQL note: "sql.execute only ever runs
// statements a read-only connection could run — no ATTACH, no PRAGMA
// writes, no DDL/DML."
var disallowedVerbs = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|attach|detach|pragma|vacuum|replace)\b`)

const defaultSQLTimeout = 30 * time.Second

// SQLResult is sql.execute's tabular result (§6.4 "sql.execute").
type SQLResult struct {
	Columns []string
	Rows    [][]any
}

// Execute runs a read-only, single-statement SQL query with a bounded
// timeout, rejecting any disallowed verb before it reaches the driver and
// appending a LIMIT when the caller didn't supply one (§4.7a).
func (e *Engine) Execute(ctx context.Context, query string, defaultLimit int) (SQLResult, error) {
	if err := classify(query); err != nil {
		return SQLResult{}, err
	}
	if defaultLimit > 0 && !strings.Contains(strings.ToLower(query), "limit") {
		query = strings.TrimRight(strings.TrimSpace(query), ";")
		query += " LIMIT " + strconv.Itoa(defaultLimit)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultSQLTimeout)
	defer cancel()

	rows, err := e.DB.QueryContext(ctx, query)
	if err != nil {
		return SQLResult{}, coreerr.Wrap(coreerr.CodeSQL, err, "execute query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return SQLResult{}, coreerr.Wrap(coreerr.CodeSQL, err, "read columns")
	}
	result := SQLResult{Columns: cols}
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		values := make([]any, len(cols))
		for i := range scanTargets {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return SQLResult{}, coreerr.Wrap(coreerr.CodeSQL, err, "scan row")
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return SQLResult{}, coreerr.Wrap(coreerr.CodeSQL, err, "iterate rows")
	}
	return result, nil
}

// Schema returns the session store's table definitions (§6.4 "sql.schema").
func (e *Engine) Schema(ctx context.Context) (map[string]string, error) {
	rows, err := e.DB.QueryContext(ctx, `SELECT name, sql FROM sqlite_master WHERE type = 'table' AND sql IS NOT NULL`)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.CodeSQL, err, "read schema")
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, err
		}
		out[name] = ddl
	}
	return out, rows.Err()
}

func classify(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return coreerr.New(coreerr.CodeSQL, "empty statement")
	}
	if strings.Contains(trimmed, ";") && strings.TrimRight(trimmed, "; \t\n") != strings.TrimRight(strings.Split(trimmed, ";")[0], " \t\n") {
		return coreerr.New(coreerr.CodeSQL, "only a single statement is permitted")
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") && !strings.HasPrefix(strings.ToLower(trimmed), "with") {
		return coreerr.New(coreerr.CodeSQL, "only SELECT/WITH statements are permitted")
	}
	if disallowedVerbs.MatchString(trimmed) {
		return coreerr.New(coreerr.CodeSQL, "statement contains a disallowed verb")
	}
	return nil
}

