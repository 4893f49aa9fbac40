// Package jsonpath normalizes the engine's two equivalent JSON path
// syntaxes -- "$.a.b" and "a->b->c" -- into the dotted form gjson/sjson
// expect, and implements JSON.GET/JSON.SET's root-vs-nested semantics.
package jsonpath

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kaelbridge/tridb/internal/corerr"
)

// Normalize converts either "$.user.settings.theme" or
// "user->settings->theme" into gjson/sjson's dotted path form. An empty or
// "$" path normalizes to "", meaning "the whole document".
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return ""
	}
	if strings.HasPrefix(path, "$.") {
		return path[2:]
	}
	if strings.Contains(path, "->") {
		return strings.ReplaceAll(path, "->", ".")
	}
	return path
}

// Get extracts the subtree at path from the JSON document doc, returning
// the raw JSON text of the result. An empty path returns doc unchanged.
func Get(doc, path string) (string, error) {
	norm := Normalize(path)
	if norm == "" {
		return doc, nil
	}
	res := gjson.Get(doc, norm)
	if !res.Exists() {
		return "", corerr.Wrap(corerr.ErrNotFound, "path %q not found", path)
	}
	return res.Raw, nil
}

// Set assigns valueJSON (itself a JSON literal) at path within doc,
// creating missing intermediate objects. An empty path replaces the
// document root entirely.
func Set(doc, path, valueJSON string) (string, error) {
	norm := Normalize(path)
	if norm == "" {
		return valueJSON, nil
	}
	if doc == "" {
		doc = "{}"
	}
	out, err := sjson.SetRaw(doc, norm, valueJSON)
	if err != nil {
		return "", corerr.Wrap(corerr.ErrParse, "invalid json path %q: %v", path, err)
	}
	return out, nil
}
