// Package wire defines the reply shapes the command dispatcher produces.
// The actual RESP-style length-prefixed byte framing described in the
// design's external interfaces section is an external collaborator's
// concern; this package only defines the tagged shape that crosses that
// boundary, dispatching on a Kind tag rather than a type hierarchy.
package wire

import "github.com/kaelbridge/tridb/internal/value"

// ReplyKind tags a Reply's shape.
type ReplyKind int

const (
	KindSimple ReplyKind = iota
	KindError
	KindInteger
	KindBulk
	KindArray
)

// Reply is the tagged union of the five wire reply shapes.
type Reply struct {
	Kind ReplyKind

	Simple  string
	ErrKind string // e.g. "wrongtype", "permission denied" — see corerr.Kind
	ErrMsg  string
	Integer int64
	Bulk    []byte
	BulkNil bool
	Array   []Reply
}

func Simple(s string) Reply { return Reply{Kind: KindSimple, Simple: s} }
func Err(kind, msg string) Reply {
	return Reply{Kind: KindError, ErrKind: kind, ErrMsg: msg}
}
func Integer(n int64) Reply { return Reply{Kind: KindInteger, Integer: n} }
func Bulk(b []byte) Reply   { return Reply{Kind: KindBulk, Bulk: b} }
func NilBulk() Reply        { return Reply{Kind: KindBulk, BulkNil: true} }
func Array(items ...Reply) Reply { return Reply{Kind: KindArray, Array: items} }

var OK = Simple("OK")
var Queued = Simple("QUEUED")

// FromValue converts a value.Value into its wire Reply, dispatching on the
// value's Kind tag exactly as corerr.Kind dispatches on error sentinels.
func FromValue(v value.Value) Reply {
	switch v.Kind {
	case value.KindNull:
		return NilBulk()
	case value.KindBool:
		if v.Bool {
			return Integer(1)
		}
		return Integer(0)
	case value.KindInt64:
		return Integer(v.Int64)
	case value.KindFloat64:
		return Bulk([]byte(value.ToDisplayString(v)))
	case value.KindString, value.KindJSON:
		return Bulk([]byte(v.Str))
	case value.KindBlob:
		return Bulk(v.Blob)
	case value.KindDateTime:
		return Integer(v.Int64)
	case value.KindVector:
		items := make([]Reply, len(v.Vector))
		for i, f := range v.Vector {
			items[i] = Bulk([]byte(value.ToDisplayString(value.Float(f))))
		}
		return Array(items...)
	case value.KindList:
		items := make([]Reply, len(v.List))
		for i, e := range v.List {
			items[i] = FromValue(e)
		}
		return Array(items...)
	case value.KindSet:
		items := make([]Reply, 0, len(v.Set))
		for m := range v.Set {
			items = append(items, Bulk([]byte(m)))
		}
		return Array(items...)
	case value.KindSortedSet:
		items := make([]Reply, 0, len(v.SortedSet)*2)
		for _, m := range v.SortedSet {
			items = append(items, Bulk([]byte(m.Member)), Bulk([]byte(value.ToDisplayString(value.Float(m.Score)))))
		}
		return Array(items...)
	case value.KindHash:
		items := make([]Reply, 0, len(v.Hash)*2)
		for f, val := range v.Hash {
			items = append(items, Bulk([]byte(f)), Bulk([]byte(val)))
		}
		return Array(items...)
	default:
		return NilBulk()
	}
}
