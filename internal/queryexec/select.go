package queryexec

import (
	"sort"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/relational"
	"github.com/kaelbridge/tridb/internal/sqlgrammar"
	"github.com/kaelbridge/tridb/internal/value"
)

// ResultRow is one row of a SELECT result: column labels paired with
// values, in projection order.
type ResultRow struct {
	Columns []string
	Values  []value.Value
}

// pickCandidates chooses the base table's starting row set: an index-backed
// candidate list when the WHERE clause's top-level AND chain contains a
// comparison of one of this table's indexed columns against a literal, or
// every live row otherwise. The first such comparison and index found are
// used; index cardinality is not consulted. JsonPath indexes are not used
// here, nor is a literal that does not parse as the column's type. The
// chosen index only narrows candidates -- the full predicate is still
// applied as a residual filter afterward.
func pickCandidates(table *relational.Table, where *sqlgrammar.Predicate) []int {
	for _, cmp := range topLevelComparisons(where) {
		if cmp.Left.IsLiteral || cmp.Left.Column == "" || cmp.Left.JSONPath != "" || !cmp.Right.IsLiteral ||
			(cmp.Left.Table != "" && cmp.Left.Table != table.Name) {
			continue
		}
		col, err := table.Column(cmp.Left.Column)
		if err != nil {
			continue
		}
		target, err := relational.ParseLiteral(col.Type, cmp.Right.Literal)
		if err != nil || target.IsNull() {
			continue
		}
		for _, idx := range table.Indexes {
			if idx.Column != cmp.Left.Column || idx.Path != "" {
				continue
			}
			switch cmp.Op {
			case sqlgrammar.OpEq:
				return idx.Equal(target)
			case sqlgrammar.OpLt, sqlgrammar.OpLte, sqlgrammar.OpGt, sqlgrammar.OpGte:
				if idx.Kind == relational.IndexBTree {
					return idx.Range(string(cmp.Op), target)
				}
			}
		}
	}
	return table.LiveRowIndices()
}

// topLevelComparisons collects every comparison reachable through a chain
// of top-level ANDs (stopping at any OR, since an OR branch can't narrow the
// candidate set safely).
func topLevelComparisons(p *sqlgrammar.Predicate) []*sqlgrammar.Comparison {
	if p == nil {
		return nil
	}
	switch p.Kind {
	case sqlgrammar.PredComparison:
		return []*sqlgrammar.Comparison{p.Comparison}
	case sqlgrammar.PredAnd:
		return append(topLevelComparisons(p.Left), topLevelComparisons(p.Right)...)
	default:
		return nil
	}
}

// Select plans and executes a parsed SELECT statement.
func Select(tables Tables, stmt *sqlgrammar.SelectStmt) ([]ResultRow, error) {
	base, ok := tables.Table(stmt.Table)
	if !ok {
		return nil, corerr.Wrap(corerr.ErrNotFound, "table %q does not exist", stmt.Table)
	}

	rows := make([]rowCtx, 0)
	for _, idx := range pickCandidates(base, stmt.Where) {
		rows = append(rows, rowCtx{rows: map[string]int{stmt.Table: idx}, tables: tables})
	}

	for _, jc := range stmt.Joins {
		jt, ok := tables.Table(jc.Table)
		if !ok {
			return nil, corerr.Wrap(corerr.ErrNotFound, "table %q does not exist", jc.Table)
		}
		var err error
		rows, err = hashJoin(rows, tables, jc.Table, jt, jc.On)
		if err != nil {
			return nil, err
		}
	}

	filtered := make([]rowCtx, 0, len(rows))
	for _, r := range rows {
		ok, err := evalPredicate(stmt.Where, rowResolver(r))
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, r)
		}
	}
	rows = filtered

	proj, err := expandStar(stmt, tables)
	if err != nil {
		return nil, err
	}

	if len(stmt.GroupBy) > 0 || hasAggregate(proj) {
		return selectGrouped(tables, stmt, proj, rows)
	}

	results := make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		rr, err := projectRow(proj, rowResolver(r))
		if err != nil {
			return nil, err
		}
		results = append(results, rr)
	}
	return orderLimit(results, stmt)
}

// expandStar resolves "SELECT *" into an explicit projection of every
// column of the base table followed by every joined table's columns, each
// table-qualified. A non-star projection passes through unchanged.
func expandStar(stmt *sqlgrammar.SelectStmt, tables Tables) ([]sqlgrammar.Expr, error) {
	if !stmt.Star {
		return stmt.Projection, nil
	}
	var proj []sqlgrammar.Expr
	tableNames := append([]string{stmt.Table}, joinTableNames(stmt)...)
	for _, tn := range tableNames {
		t, ok := tables.Table(tn)
		if !ok {
			return nil, corerr.Wrap(corerr.ErrNotFound, "table %q does not exist", tn)
		}
		for _, col := range t.Columns {
			proj = append(proj, sqlgrammar.Expr{Table: tn, Column: col.Name})
		}
	}
	return proj, nil
}

func joinTableNames(stmt *sqlgrammar.SelectStmt) []string {
	names := make([]string, len(stmt.Joins))
	for i, j := range stmt.Joins {
		names[i] = j.Table
	}
	return names
}

// hashJoin extends each existing joined row with matching rows from the
// newly joined table, using a hash index built over whichever side of the
// ON clause references the new table.
func hashJoin(existing []rowCtx, tables Tables, jtName string, jt *relational.Table, on sqlgrammar.Comparison) ([]rowCtx, error) {
	var outerExpr, innerExpr sqlgrammar.Expr
	switch {
	case on.Left.Table == jtName || (on.Left.Table == "" && jt.ColumnIndex(on.Left.Column) != -1 && on.Right.Table != jtName):
		innerExpr, outerExpr = on.Left, on.Right
	default:
		innerExpr, outerExpr = on.Right, on.Left
	}

	index := map[string][]int{}
	for _, ri := range jt.LiveRowIndices() {
		v, err := resolveExpr(innerExpr, rowCtx{rows: map[string]int{jtName: ri}, tables: tables})
		if err != nil {
			return nil, err
		}
		key := value.ToDisplayString(v)
		index[key] = append(index[key], ri)
	}

	out := make([]rowCtx, 0, len(existing))
	for _, r := range existing {
		v, err := resolveExpr(outerExpr, r)
		if err != nil {
			return nil, err
		}
		key := value.ToDisplayString(v)
		for _, ri := range index[key] {
			combined := map[string]int{jtName: ri}
			for t, idx := range r.rows {
				combined[t] = idx
			}
			out = append(out, rowCtx{rows: combined, tables: tables})
		}
	}
	return out, nil
}

func hasAggregate(proj []sqlgrammar.Expr) bool {
	for _, e := range proj {
		if e.IsAgg {
			return true
		}
	}
	return false
}

func projectRow(proj []sqlgrammar.Expr, resolve resolver) (ResultRow, error) {
	rr := ResultRow{}
	for _, e := range proj {
		v, err := resolve(e)
		if err != nil {
			return ResultRow{}, err
		}
		rr.Columns = append(rr.Columns, exprLabel(e))
		rr.Values = append(rr.Values, v)
	}
	return rr, nil
}

// groupKey renders a joined row's GROUP BY columns to a comparable string
// key (exact for all scalar kinds we support grouping on).
func groupKey(exprs []sqlgrammar.Expr, r rowCtx) (string, error) {
	key := ""
	for _, e := range exprs {
		v, err := resolveExpr(e, r)
		if err != nil {
			return "", err
		}
		key += value.ToDisplayString(v) + "\x00" + v.Kind.String() + "\x01"
	}
	return key, nil
}

func selectGrouped(tables Tables, stmt *sqlgrammar.SelectStmt, proj []sqlgrammar.Expr, rows []rowCtx) ([]ResultRow, error) {
	type group struct {
		rows []rowCtx
	}
	order := []string{}
	groups := map[string]*group{}
	for _, r := range rows {
		k, err := groupKey(stmt.GroupBy, r)
		if err != nil {
			return nil, err
		}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		g.rows = append(g.rows, r)
	}
	if len(stmt.GroupBy) == 0 {
		// No GROUP BY but an aggregate projection: the whole result set is
		// one implicit group.
		order = []string{""}
		groups[""] = &group{rows: rows}
	}

	results := make([]ResultRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		resolve := func(e sqlgrammar.Expr) (value.Value, error) {
			if e.IsAgg {
				return computeAgg(e, g.rows)
			}
			if len(g.rows) == 0 {
				return value.Null(), nil
			}
			return resolveExpr(e, g.rows[0])
		}
		if stmt.Having != nil {
			ok, err := evalPredicate(stmt.Having, resolve)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		rr, err := projectRow(proj, resolve)
		if err != nil {
			return nil, err
		}
		results = append(results, rr)
	}
	return orderLimit(results, stmt)
}

func computeAgg(e sqlgrammar.Expr, rows []rowCtx) (value.Value, error) {
	if e.AggFunc == "COUNT" && e.AggStar {
		return value.Int(int64(len(rows))), nil
	}
	var nums []float64
	for _, r := range rows {
		v, err := resolveExpr(*e.AggArg, r)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsNull() {
			continue
		}
		switch e.AggFunc {
		case "COUNT":
			continue
		default:
			coerced, err := value.Coerce(v, value.KindFloat64)
			if err != nil {
				return value.Value{}, err
			}
			nums = append(nums, coerced.Float64)
		}
	}
	switch e.AggFunc {
	case "COUNT":
		n := 0
		for _, r := range rows {
			v, err := resolveExpr(*e.AggArg, r)
			if err != nil {
				return value.Value{}, err
			}
			if !v.IsNull() {
				n++
			}
		}
		return value.Int(int64(n)), nil
	case "SUM":
		var s float64
		for _, n := range nums {
			s += n
		}
		return value.Float(s), nil
	case "AVG":
		if len(nums) == 0 {
			return value.Null(), nil
		}
		var s float64
		for _, n := range nums {
			s += n
		}
		return value.Float(s / float64(len(nums))), nil
	case "MAX":
		if len(nums) == 0 {
			return value.Null(), nil
		}
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return value.Float(m), nil
	case "MIN":
		if len(nums) == 0 {
			return value.Null(), nil
		}
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return value.Float(m), nil
	default:
		return value.Value{}, corerr.Wrap(corerr.ErrParse, "unknown aggregate function %q", e.AggFunc)
	}
}

// orderLimit applies ORDER BY (stable, so equal keys keep insertion order as
// the tiebreak) then OFFSET/LIMIT pagination, re-resolving each order term
// against the already-projected ResultRow columns.
func orderLimit(results []ResultRow, stmt *sqlgrammar.SelectStmt) ([]ResultRow, error) {
	if len(stmt.OrderBy) > 0 {
		keys := make([][]value.Value, len(results))
		for i, rr := range results {
			row := make([]value.Value, len(stmt.OrderBy))
			for j, term := range stmt.OrderBy {
				label := exprLabel(term.Expr)
				found := false
				for ci, c := range rr.Columns {
					if c == label {
						row[j] = rr.Values[ci]
						found = true
						break
					}
				}
				if !found {
					return nil, corerr.Wrap(corerr.ErrParse, "ORDER BY term %q is not in the projection", label)
				}
			}
			keys[i] = row
		}
		idxs := make([]int, len(results))
		for i := range idxs {
			idxs[i] = i
		}
		sort.SliceStable(idxs, func(i, j int) bool {
			a, b := keys[idxs[i]], keys[idxs[j]]
			for k, term := range stmt.OrderBy {
				c, err := compareCoerced(a[k], b[k])
				if err != nil || c == 0 {
					continue
				}
				if term.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		ordered := make([]ResultRow, len(results))
		for i, idx := range idxs {
			ordered[i] = results[idx]
		}
		results = ordered
	}

	if stmt.Offset > 0 {
		if stmt.Offset >= len(results) {
			results = nil
		} else {
			results = results[stmt.Offset:]
		}
	}
	if stmt.HasLimit && stmt.Limit < len(results) {
		results = results[:stmt.Limit]
	}
	return results, nil
}
