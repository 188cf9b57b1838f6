package database

import (
	"fmt"
	"strings"
)

// Dialect controls which SQL placeholder style statements use.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders.
	DialectMySQL
)

// Rebind rewrites a statement written with ? placeholders into the style of
// d. Question marks inside single-quoted literals are left alone.
//
//	Rebind(DialectPostgres, "SELECT 1 FROM t WHERE a = ? AND b = ?")
//	// SELECT 1 FROM t WHERE a = $1 AND b = $2
func Rebind(d Dialect, query string) string {
	if d == DialectMySQL {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			sb.WriteString(placeholder(d, n))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// placeholder returns the correct parameter placeholder for the dialect.
// Postgres: $1, $2, …   MySQL: ? (index is ignored)
func placeholder(d Dialect, idx int) string {
	if d == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", idx)
}
