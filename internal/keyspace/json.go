package keyspace

import (
	"encoding/json"
	"strings"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/jsonpath"
	"github.com/kaelbridge/tridb/internal/value"
)

// JSONSet parses valueLiteral as JSON and assigns it at path within the
// document at key, creating the key and missing intermediate objects as
// needed. valueLiteral may be a bare JSON literal or a double-quoted,
// backslash-escaped JSON string -- both are normalized before assignment.
func (s *Store) JSONSet(key, path, valueLiteral string) error {
	literal := normalizeJSONLiteral(valueLiteral)
	if !json.Valid([]byte(literal)) {
		return corerr.Wrap(corerr.ErrParse, "invalid json literal: %s", valueLiteral)
	}

	return s.mutate(key, func(cur value.Value) (value.Value, error) {
		var doc string
		switch cur.Kind {
		case value.KindNull:
			doc = ""
		case value.KindJSON:
			doc = cur.Str
		default:
			return cur, wrongType(key, value.KindJSON, cur)
		}

		out, err := jsonpath.Set(doc, path, literal)
		if err != nil {
			return cur, err
		}
		return value.JSON(out), nil
	})
}

// JSONGet returns the JSON subtree at path (the whole document if path is
// empty) for the document at key.
func (s *Store) JSONGet(key, path string) (string, error) {
	v := s.Get(key)
	if v.IsNull() {
		return "", corerr.ErrNotFound
	}
	if v.Kind != value.KindJSON {
		return "", wrongType(key, value.KindJSON, v)
	}
	return jsonpath.Get(v.Str, path)
}

// normalizeJSONLiteral accepts a double-quoted, backslash-escaped JSON
// string (the wire grammar's alternate form for JSON.SET's value argument)
// and unwraps it to the bare literal it encodes; a literal that is already
// bare JSON is returned unchanged.
func normalizeJSONLiteral(literal string) string {
	trimmed := strings.TrimSpace(literal)
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		var unwrapped string
		if err := json.Unmarshal([]byte(trimmed), &unwrapped); err == nil {
			if json.Valid([]byte(unwrapped)) {
				return unwrapped
			}
		}
	}
	return trimmed
}
