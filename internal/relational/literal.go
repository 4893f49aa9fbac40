package relational

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/value"
)

// ParseLiteral coerces a raw token from INSERT/UPDATE into a Value of the
// declared column type, per the design's literal grammar: strings are
// unquoted, numeric literals are parsed, true/false map to Bool,
// "[f, f, ...]" maps to Vector, and "{...}" (or a quoted JSON string) maps
// to Json.
func ParseLiteral(t ColumnType, raw string) (value.Value, error) {
	if raw == "null" || raw == "NULL" {
		return value.Null(), nil
	}

	switch t {
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "%q is not a valid int", raw)
		}
		return value.Int(n), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "%q is not a valid float", raw)
		}
		return value.Float(f), nil
	case TypeBool:
		switch strings.ToLower(raw) {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		}
		return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "%q is not a valid bool", raw)
	case TypeDateTime:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "%q is not a valid datetime (epoch ms)", raw)
		}
		return value.DateTime(n), nil
	case TypeBlob:
		return value.Blob([]byte(unquote(raw))), nil
	case TypeString:
		return value.Str(unquote(raw)), nil
	case TypeVector:
		return parseVector(raw)
	case TypeJSON:
		return parseJSON(raw)
	default:
		return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "unsupported column type")
	}
}

func unquote(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			return s
		}
		return raw[1 : len(raw)-1]
	}
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		inner := raw[1 : len(raw)-1]
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		inner = strings.ReplaceAll(inner, `\\`, `\`)
		return inner
	}
	return raw
}

// isQuoted reports whether a token is wrapped in matching single or double
// quotes, the marker the tokenizer uses to tell a string literal apart from
// a bare identifier.
func isQuoted(raw string) bool {
	return len(raw) >= 2 && ((raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\''))
}

// IsQuotedLiteral is the exported form of isQuoted, used by the statement
// parser to tell a quoted string literal apart from a column reference.
func IsQuotedLiteral(raw string) bool { return isQuoted(raw) }

// Unquote is the exported form of unquote.
func Unquote(raw string) string { return unquote(raw) }

func parseVector(raw string) (value.Value, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "vector literal must look like [f, f, ...]: %q", raw)
	}
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if inner == "" {
		return value.Vector(nil), nil
	}
	parts := strings.Split(inner, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "invalid vector component %q", p)
		}
		vec[i] = f
	}
	return value.Vector(vec), nil
}

func parseJSON(raw string) (value.Value, error) {
	raw = strings.TrimSpace(raw)
	// Accept both bare JSON ("{...}", "[...]", a bare literal) and a
	// double-quoted, backslash-escaped JSON string, normalizing to the bare
	// form the document is stored as.
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		var inner string
		if err := json.Unmarshal([]byte(raw), &inner); err == nil && json.Valid([]byte(inner)) {
			raw = inner
		}
	}
	if !json.Valid([]byte(raw)) {
		return value.Value{}, corerr.Wrap(corerr.ErrSchemaViolation, "invalid json literal: %s", raw)
	}
	return value.JSON(raw), nil
}
