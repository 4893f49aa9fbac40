// Package corerr defines the engine's sentinel error kinds and maps them to
// the wire-level error labels from the external protocol.
package corerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the kinds enumerated in the design's error handling
// section. Handlers return these (or errors wrapping them via %w) and the
// dispatcher resolves the wire label with Kind.
var (
	ErrParse          = errors.New("syntax error")
	ErrAuth           = errors.New("authentication failed")
	ErrPermission     = errors.New("permission denied")
	ErrTypeMismatch   = errors.New("wrongtype")
	ErrNotFound       = errors.New("not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrSchemaViolation = errors.New("schema violation")
	ErrTxState        = errors.New("invalid transaction state")
	ErrIO             = errors.New("io error")
	ErrCorruption     = errors.New("corrupt data")
	ErrInternal       = errors.New("internal error")
)

// kindLabels associates each sentinel with its wire error label, in the
// order they should be probed (most specific first — none overlap, order is
// not load-bearing today but keeps future additions easy to reason about).
var kindLabels = []struct {
	err   error
	label string
}{
	{ErrParse, "syntax"},
	{ErrAuth, "auth"},
	{ErrPermission, "permission denied"},
	{ErrTypeMismatch, "wrongtype"},
	{ErrNotFound, "not found"},
	{ErrDuplicateKey, "duplicate"},
	{ErrSchemaViolation, "schema"},
	{ErrTxState, "tx"},
	{ErrIO, "io"},
	{ErrCorruption, "corrupt"},
	{ErrInternal, "internal"},
}

// Kind resolves the wire label for an error, walking errors.Is over the
// known sentinels. Unrecognized errors map to "internal" rather than
// leaking implementation detail to the client.
func Kind(err error) string {
	for _, k := range kindLabels {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "internal"
}

// Wrap annotates a sentinel with context while preserving errors.Is matching.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
