// Package vectorsearch implements exact cosine K-nearest-neighbor search
// over a table's Vector column, scanning every live row (no approximate
// index) and ranking by cosine similarity.
package vectorsearch

import (
	"math"
	"sort"

	"github.com/kaelbridge/tridb/internal/corelog"
	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/relational"
	"github.com/kaelbridge/tridb/internal/value"
)

// Result is one scored row from a SEARCH statement.
type Result struct {
	Row        int
	Similarity float64
}

// cosine returns the cosine similarity of a and b. Both are L2-normalized
// before the dot product, so the result is identical whether or not a
// column's vectors were normalized at insert time.
func cosine(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// Search ranks table's live rows by cosine similarity of column against
// query, returning the top k in descending-similarity order with ascending
// row-index as the tiebreak. A row whose vector is Null is skipped; a row
// whose vector dimension disagrees with the query is skipped with a
// logged warning rather than failing the whole search.
func Search(table *relational.Table, column string, query []float64, k int) ([]Result, error) {
	colIdx := table.ColumnIndex(column)
	if colIdx == -1 {
		return nil, corerr.Wrap(corerr.ErrSchemaViolation, "column %q does not exist on table %q", column, table.Name)
	}
	if table.Columns[colIdx].Type != relational.TypeVector {
		return nil, corerr.Wrap(corerr.ErrTypeMismatch, "column %q is not a vector column", column)
	}

	var results []Result
	for _, rowIdx := range table.LiveRowIndices() {
		v := table.Rows[rowIdx].Values[colIdx]
		if v.Kind == value.KindNull {
			continue
		}
		sim, ok := cosine(v.Vector, query)
		if !ok {
			corelog.Logger.Warn("search: skipping row with incompatible vector",
				"table", table.Name, "column", column, "row", rowIdx,
				"want_dims", len(query), "got_dims", len(v.Vector))
			continue
		}
		results = append(results, Result{Row: rowIdx, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Row < results[j].Row
	})
	if k >= 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}
