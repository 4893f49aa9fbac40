// Package queryexec plans and executes parsed SELECT/UPDATE/DELETE
// statements against the structured store: index-assisted row selection,
// hash joins, GROUP BY/HAVING aggregation, ORDER BY, and OFFSET/LIMIT
// pagination.
package queryexec

import (
	"strconv"
	"strings"

	"github.com/kaelbridge/tridb/internal/relational"
	"github.com/kaelbridge/tridb/internal/value"
)

// inferLiteral parses a bare token from a predicate or projection into a
// Value, guessing its kind from its syntax rather than from schema context
// (comparisons against a typed column then coerce through value.Coerce).
func inferLiteral(tok string) value.Value {
	if relational.IsQuotedLiteral(tok) {
		return value.Str(relational.Unquote(tok))
	}
	switch strings.ToLower(tok) {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	case "null":
		return value.Null()
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return value.Int(n)
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return value.Float(f)
	}
	if len(tok) >= 2 && tok[0] == '[' && tok[len(tok)-1] == ']' {
		if v, err := relational.ParseLiteral(relational.TypeVector, tok); err == nil {
			return v
		}
	}
	if len(tok) >= 2 && tok[0] == '{' && tok[len(tok)-1] == '}' {
		if v, err := relational.ParseLiteral(relational.TypeJSON, tok); err == nil {
			return v
		}
	}
	return value.Str(tok)
}
