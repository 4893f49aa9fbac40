package queryexec

import (
	"strings"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/jsonpath"
	"github.com/kaelbridge/tridb/internal/relational"
	"github.com/kaelbridge/tridb/internal/sqlgrammar"
	"github.com/kaelbridge/tridb/internal/value"
)

// Tables resolves a table name to its schema/rows, the interface queryexec
// needs from whatever holds the structured store (internal/engine.Database
// in production, a bare map in tests).
type Tables interface {
	Table(name string) (*relational.Table, bool)
}

// MapTables is the trivial Tables implementation used by tests and by
// single-table callers.
type MapTables map[string]*relational.Table

func (m MapTables) Table(name string) (*relational.Table, bool) {
	t, ok := m[name]
	return t, ok
}

// rowCtx is one joined row: which row index each table contributes.
type rowCtx struct {
	rows   map[string]int
	tables Tables
}

func (c rowCtx) resolveColumn(tableHint, col string) (value.Value, error) {
	tableName := tableHint
	if tableName == "" {
		var match string
		for t := range c.rows {
			tbl, ok := c.tables.Table(t)
			if !ok {
				continue
			}
			if tbl.ColumnIndex(col) != -1 {
				if match != "" && match != t {
					return value.Value{}, corerr.Wrap(corerr.ErrParse, "ambiguous column %q", col)
				}
				match = t
			}
		}
		if match == "" {
			return value.Value{}, corerr.Wrap(corerr.ErrParse, "unknown column %q", col)
		}
		tableName = match
	}
	rowIdx, ok := c.rows[tableName]
	if !ok {
		return value.Value{}, corerr.Wrap(corerr.ErrParse, "table %q not in scope", tableName)
	}
	tbl, ok := c.tables.Table(tableName)
	if !ok {
		return value.Value{}, corerr.Wrap(corerr.ErrNotFound, "table %q does not exist", tableName)
	}
	colIdx := tbl.ColumnIndex(col)
	if colIdx == -1 {
		return value.Value{}, corerr.Wrap(corerr.ErrParse, "column %q does not exist on table %q", col, tableName)
	}
	return tbl.Rows[rowIdx].Values[colIdx], nil
}

// resolveExpr evaluates a column reference or literal to a Value.
func resolveExpr(e sqlgrammar.Expr, c rowCtx) (value.Value, error) {
	if e.IsLiteral {
		return inferLiteral(e.Literal), nil
	}
	v, err := c.resolveColumn(e.Table, e.Column)
	if err != nil {
		return value.Value{}, err
	}
	if e.JSONPath == "" {
		return v, nil
	}
	if v.Kind != value.KindJSON {
		return value.Value{}, corerr.Wrap(corerr.ErrTypeMismatch, "%q is not a json column", e.Column)
	}
	sub, err := jsonpath.Get(v.Str, e.JSONPath)
	if err != nil {
		return value.Value{}, err
	}
	return value.JSON(sub), nil
}

// compareCoerced compares a and b, coercing b to a's kind when they differ
// (so "age > 27" can compare an Int64 column against an inferred literal of
// a different numeric kind, or a JSON subtree against a plain literal).
// Vectors and collections are never coerced: comparing one with a value of
// another kind fails with corerr.ErrTypeMismatch.
func compareCoerced(a, b value.Value) (int, error) {
	if a.Kind == b.Kind {
		return value.Compare(a, b)
	}
	for _, k := range []value.Kind{a.Kind, b.Kind} {
		switch k {
		case value.KindVector, value.KindList, value.KindSet, value.KindSortedSet, value.KindHash:
			return 0, corerr.Wrap(corerr.ErrTypeMismatch, "cannot compare %s with %s", a.Kind, b.Kind)
		}
	}
	if coerced, err := value.Coerce(b, a.Kind); err == nil {
		return value.Compare(a, coerced)
	}
	if coerced, err := value.Coerce(a, b.Kind); err == nil {
		return value.Compare(coerced, b)
	}
	return 0, corerr.Wrap(corerr.ErrTypeMismatch, "cannot compare %s with %s", a.Kind, b.Kind)
}

// likeMatch implements SQL-style LIKE with % (any run) and _ (one char)
// wildcards, case-sensitive.
func likeMatch(pattern, s string) bool {
	return likeMatchRunes([]rune(pattern), []rune(s))
}

func likeMatchRunes(p, s []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '%' {
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(p[1:], s[i:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '_' || p[0] == s[0] {
		return likeMatchRunes(p[1:], s[1:])
	}
	return false
}

// resolver resolves an Expr to a Value in whatever context is currently
// being evaluated: a single joined row, or (for HAVING) an aggregated group.
type resolver func(e sqlgrammar.Expr) (value.Value, error)

func rowResolver(c rowCtx) resolver {
	return func(e sqlgrammar.Expr) (value.Value, error) { return resolveExpr(e, c) }
}

func evalComparison(cmp *sqlgrammar.Comparison, resolve resolver) (bool, error) {
	left, err := resolve(cmp.Left)
	if err != nil {
		return false, err
	}

	switch cmp.Op {
	case sqlgrammar.OpIn:
		for _, rhs := range cmp.InValues {
			right, err := resolve(rhs)
			if err != nil {
				return false, err
			}
			if cmp2, err := compareCoerced(left, right); err == nil && cmp2 == 0 {
				return true, nil
			}
		}
		return false, nil
	case sqlgrammar.OpLike:
		right, err := resolve(cmp.Right)
		if err != nil {
			return false, err
		}
		return likeMatch(value.ToDisplayString(right), value.ToDisplayString(left)), nil
	}

	right, err := resolve(cmp.Right)
	if err != nil {
		return false, err
	}
	result, err := compareCoerced(left, right)
	if err != nil {
		return false, err
	}
	switch cmp.Op {
	case sqlgrammar.OpEq:
		return result == 0, nil
	case sqlgrammar.OpNeq:
		return result != 0, nil
	case sqlgrammar.OpLt:
		return result < 0, nil
	case sqlgrammar.OpLte:
		return result <= 0, nil
	case sqlgrammar.OpGt:
		return result > 0, nil
	case sqlgrammar.OpGte:
		return result >= 0, nil
	default:
		return false, corerr.Wrap(corerr.ErrParse, "unsupported operator %q", cmp.Op)
	}
}

func evalPredicate(p *sqlgrammar.Predicate, resolve resolver) (bool, error) {
	if p == nil {
		return true, nil
	}
	switch p.Kind {
	case sqlgrammar.PredComparison:
		return evalComparison(p.Comparison, resolve)
	case sqlgrammar.PredAnd:
		l, err := evalPredicate(p.Left, resolve)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return evalPredicate(p.Right, resolve)
	case sqlgrammar.PredOr:
		l, err := evalPredicate(p.Left, resolve)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalPredicate(p.Right, resolve)
	default:
		return false, corerr.Wrap(corerr.ErrParse, "unknown predicate kind")
	}
}

// exprLabel renders an Expr as the column label used in result sets and
// GROUP BY keying.
func exprLabel(e sqlgrammar.Expr) string {
	if e.IsAgg {
		arg := "*"
		if e.AggArg != nil {
			arg = exprLabel(*e.AggArg)
		}
		return strings.ToLower(e.AggFunc) + "(" + arg + ")"
	}
	if e.IsLiteral {
		return e.Literal
	}
	label := e.Column
	if e.Table != "" {
		label = e.Table + "." + label
	}
	if e.JSONPath != "" {
		label += "->" + e.JSONPath
	}
	return label
}
