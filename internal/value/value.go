// Package value implements the engine's tagged value union and the
// comparison/coercion rules shared by the keyspace and relational stores.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kaelbridge/tridb/internal/corerr"
)

// Kind tags a Value's active variant.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBlob
	KindDateTime
	KindVector
	KindJSON
	KindList
	KindSet
	KindSortedSet
	KindHash
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int"
	case KindFloat64:
		return "float"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	case KindDateTime:
		return "datetime"
	case KindVector:
		return "vector"
	case KindJSON:
		return "json"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindSortedSet:
		return "sortedset"
	case KindHash:
		return "hash"
	default:
		return "unknown"
	}
}

// ZMember is one member/score pair of a SortedSet.
type ZMember struct {
	Member string
	Score  float64
}

// Value is the tagged sum type every store in the engine operates on. Only
// the field(s) matching Kind are meaningful; operations dispatch on Kind
// rather than via a type hierarchy, per the design notes.
type Value struct {
	Kind Kind

	Bool     bool
	Int64    int64
	Float64  float64
	Str      string  // String and Json variants
	Blob     []byte
	Vector   []float64
	List     []Value
	Set      map[string]struct{}
	SortedSet []ZMember // kept sorted by (score, member)
	Hash     map[string]string
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value            { return Value{Kind: KindInt64, Int64: i} }
func Float(f float64) Value        { return Value{Kind: KindFloat64, Float64: f} }
func Str(s string) Value           { return Value{Kind: KindString, Str: s} }
func Blob(b []byte) Value          { return Value{Kind: KindBlob, Blob: b} }
func DateTime(ms int64) Value      { return Value{Kind: KindDateTime, Int64: ms} }
func Vector(v []float64) Value     { return Value{Kind: KindVector, Vector: v} }
func JSON(s string) Value          { return Value{Kind: KindJSON, Str: s} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Coerce converts v to the requested kind, following the engine's numeric
// promotion and string-literal parsing rules. It returns corerr.ErrTypeMismatch
// wrapped with context when no conversion applies.
func Coerce(v Value, target Kind) (Value, error) {
	if v.Kind == target {
		return v, nil
	}
	if v.Kind == KindNull {
		return Value{Kind: target}, nil
	}

	switch target {
	case KindInt64:
		switch v.Kind {
		case KindFloat64:
			return Int(int64(v.Float64)), nil
		case KindString:
			n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
			if err != nil {
				return Value{}, corerr.Wrap(corerr.ErrTypeMismatch, "%q is not an integer", v.Str)
			}
			return Int(n), nil
		}
	case KindFloat64:
		switch v.Kind {
		case KindInt64:
			return Float(float64(v.Int64)), nil
		case KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				return Value{}, corerr.Wrap(corerr.ErrTypeMismatch, "%q is not a float", v.Str)
			}
			return Float(f), nil
		}
	case KindBool:
		if v.Kind == KindString {
			switch strings.ToLower(v.Str) {
			case "true":
				return Bool(true), nil
			case "false":
				return Bool(false), nil
			}
		}
	case KindString:
		return Str(ToDisplayString(v)), nil
	}

	return Value{}, corerr.Wrap(corerr.ErrTypeMismatch, "cannot coerce %s to %s", v.Kind, target)
}

// ToDisplayString renders a scalar Value as a string, used for SET-style
// comparisons and wire replies.
func ToDisplayString(v Value) string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt64:
		return strconv.FormatInt(v.Int64, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case KindString, KindJSON:
		return v.Str
	case KindBlob:
		return string(v.Blob)
	case KindDateTime:
		return strconv.FormatInt(v.Int64, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Compare orders two Values. Numeric kinds promote Int64<->Float64; strings
// compare lexicographically; other cross-variant comparisons return
// corerr.ErrTypeMismatch. The returned int follows the usual -1/0/1 convention.
func Compare(a, b Value) (int, error) {
	if isNumeric(a.Kind) && isNumeric(b.Kind) {
		af, bf := asFloat(a), asFloat(b)
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	if a.Kind != b.Kind {
		return 0, corerr.Wrap(corerr.ErrTypeMismatch, "cannot compare %s with %s", a.Kind, b.Kind)
	}

	switch a.Kind {
	case KindNull:
		return 0, nil
	case KindBool:
		if a.Bool == b.Bool {
			return 0, nil
		}
		if !a.Bool {
			return -1, nil
		}
		return 1, nil
	case KindString, KindJSON:
		return strings.Compare(a.Str, b.Str), nil
	case KindDateTime:
		switch {
		case a.Int64 < b.Int64:
			return -1, nil
		case a.Int64 > b.Int64:
			return 1, nil
		default:
			return 0, nil
		}
	case KindBlob:
		return strings.Compare(string(a.Blob), string(b.Blob)), nil
	default:
		return 0, corerr.Wrap(corerr.ErrTypeMismatch, "%s is not orderable", a.Kind)
	}
}

// Equal reports whether a and b compare equal, treating incomparable
// variants as unequal rather than erroring (used by filter predicates).
func Equal(a, b Value) bool {
	c, err := Compare(a, b)
	return err == nil && c == 0
}

func isNumeric(k Kind) bool { return k == KindInt64 || k == KindFloat64 }

func asFloat(v Value) float64 {
	if v.Kind == KindInt64 {
		return float64(v.Int64)
	}
	return v.Float64
}

// Clone deep-copies the mutable containers a Value may hold (Set, Hash,
// SortedSet, List, Vector, Blob) so a caller holding a Clone is insulated
// from later in-place mutation of the original -- used by the keyspace
// store's undo snapshots, which must not observe later writes to the same
// key's underlying map/slice.
func Clone(v Value) Value {
	switch v.Kind {
	case KindBlob:
		b := make([]byte, len(v.Blob))
		copy(b, v.Blob)
		v.Blob = b
	case KindVector:
		vec := make([]float64, len(v.Vector))
		copy(vec, v.Vector)
		v.Vector = vec
	case KindList:
		list := make([]Value, len(v.List))
		for i, e := range v.List {
			list[i] = Clone(e)
		}
		v.List = list
	case KindSet:
		set := make(map[string]struct{}, len(v.Set))
		for m := range v.Set {
			set[m] = struct{}{}
		}
		v.Set = set
	case KindSortedSet:
		zs := make([]ZMember, len(v.SortedSet))
		copy(zs, v.SortedSet)
		v.SortedSet = zs
	case KindHash:
		h := make(map[string]string, len(v.Hash))
		for k, val := range v.Hash {
			h[k] = val
		}
		v.Hash = h
	}
	return v
}

// SortSortedSet re-sorts a SortedSet's members by (score, member), the
// canonical order for SortedSet storage.
func SortSortedSet(members []ZMember) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
}
