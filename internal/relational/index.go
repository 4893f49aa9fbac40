package relational

import (
	"math"

	"github.com/google/btree"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/jsonpath"
	"github.com/kaelbridge/tridb/internal/value"
)

// IndexKind is one of the three secondary-index structures the design
// allows: BTree (ordered, serves equality and range predicates), Hash
// (equality only), and JsonPath (equality over a JSON column's subtree).
type IndexKind int

const (
	IndexHash IndexKind = iota
	IndexBTree
	IndexJSONPath
)

// btreeEntry is one (indexed value, row index) pair stored in a BTree
// index, ordered by value then by row index as a tiebreaker so the tree
// never collapses same-valued entries into one another.
type btreeEntry struct {
	key value.Value
	row int
}

func lessEntry(a, b btreeEntry) bool {
	c, err := value.Compare(a.key, b.key)
	if err != nil || c != 0 {
		return err == nil && c < 0
	}
	return a.row < b.row
}

// Index is a secondary index on one column (or, for JsonPath, one path
// within a JSON column) of a table.
type Index struct {
	Name   string
	Table  string
	Column string
	Kind   IndexKind
	Path   string // JsonPath kind only

	hash map[string]map[int]struct{}
	tree *btree.BTreeG[btreeEntry]
}

// NewIndex constructs an empty index of the given kind.
func NewIndex(name, table, column string, kind IndexKind, path string) *Index {
	idx := &Index{Name: name, Table: table, Column: column, Kind: kind, Path: path}
	switch kind {
	case IndexBTree:
		idx.tree = btree.NewG(32, lessEntry)
	default:
		idx.hash = map[string]map[int]struct{}{}
	}
	return idx
}

// indexKeyFor extracts the value this index keys on from a row's column
// value -- the column value itself for Hash/BTree, or the JSON subtree at
// Path for JsonPath.
func (idx *Index) indexKeyFor(colVal value.Value) (value.Value, bool) {
	if idx.Kind != IndexJSONPath {
		return colVal, !colVal.IsNull()
	}
	if colVal.Kind != value.KindJSON {
		return value.Value{}, false
	}
	sub, err := jsonpath.Get(colVal.Str, idx.Path)
	if err != nil {
		return value.Value{}, false
	}
	return value.JSON(sub), true
}

func hashKey(v value.Value) string {
	return value.ToDisplayString(v) + "|" + v.Kind.String()
}

// HashKey is the exported form of hashKey, used by snapshot restore to
// rebuild a table's PK index from its rows without re-running inserts.
func HashKey(v value.Value) string { return hashKey(v) }

// Insert adds (row's indexed value -> rowIdx) to the index.
func (idx *Index) Insert(colVal value.Value, rowIdx int) {
	key, ok := idx.indexKeyFor(colVal)
	if !ok {
		return
	}
	if idx.Kind == IndexBTree {
		idx.tree.ReplaceOrInsert(btreeEntry{key: key, row: rowIdx})
		return
	}
	hk := hashKey(key)
	set, ok := idx.hash[hk]
	if !ok {
		set = map[int]struct{}{}
		idx.hash[hk] = set
	}
	set[rowIdx] = struct{}{}
}

// Remove drops (row's indexed value -> rowIdx) from the index.
func (idx *Index) Remove(colVal value.Value, rowIdx int) {
	key, ok := idx.indexKeyFor(colVal)
	if !ok {
		return
	}
	if idx.Kind == IndexBTree {
		idx.tree.Delete(btreeEntry{key: key, row: rowIdx})
		return
	}
	hk := hashKey(key)
	if set, ok := idx.hash[hk]; ok {
		delete(set, rowIdx)
		if len(set) == 0 {
			delete(idx.hash, hk)
		}
	}
}

// Equal returns the row indices whose indexed value equals target.
func (idx *Index) Equal(target value.Value) []int {
	if idx.Kind == IndexBTree {
		var out []int
		idx.tree.AscendGreaterOrEqual(btreeEntry{key: target, row: math.MinInt}, func(e btreeEntry) bool {
			c, err := value.Compare(e.key, target)
			if err != nil || c > 0 {
				return false
			}
			if c == 0 {
				out = append(out, e.row)
			}
			return true
		})
		return out
	}
	set, ok := idx.hash[hashKey(target)]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	return out
}

// Range returns row indices whose indexed value satisfies the comparison
// op against target. Only meaningful (and only called by the planner) for
// BTree indexes.
func (idx *Index) Range(op string, target value.Value) []int {
	if idx.Kind != IndexBTree {
		return nil
	}
	var out []int
	switch op {
	case "<", "<=":
		idx.tree.Ascend(func(e btreeEntry) bool {
			c, err := value.Compare(e.key, target)
			if err != nil {
				return true
			}
			if c < 0 || (op == "<=" && c == 0) {
				out = append(out, e.row)
				return true
			}
			return false
		})
	case ">", ">=":
		idx.tree.Descend(func(e btreeEntry) bool {
			c, err := value.Compare(e.key, target)
			if err != nil {
				return true
			}
			if c > 0 || (op == ">=" && c == 0) {
				out = append(out, e.row)
				return true
			}
			return false
		})
	}
	return out
}

// Cardinality reports the index's size: Hash and JsonPath indexes report
// the number of distinct keys, BTree indexes the number of indexed entries.
// The queryexec planner does not consult it.
func (idx *Index) Cardinality() int {
	if idx.Kind == IndexBTree {
		return idx.tree.Len()
	}
	return len(idx.hash)
}

// CreateIndex builds and backfills a new secondary index on the table from
// its current live rows.
func (t *Table) CreateIndex(name, column string, kind IndexKind, path string) error {
	if _, exists := t.Indexes[name]; exists {
		return corerr.Wrap(corerr.ErrSchemaViolation, "index %q already exists", name)
	}
	colIdx := t.ColumnIndex(column)
	if colIdx == -1 {
		return corerr.Wrap(corerr.ErrSchemaViolation, "column %q does not exist on table %q", column, t.Name)
	}

	idx := NewIndex(name, t.Name, column, kind, path)
	for i, r := range t.Rows {
		if r.Deleted {
			continue
		}
		idx.Insert(r.Values[colIdx], i)
	}
	t.Indexes[name] = idx
	return nil
}

// CreateIndexUndo is CreateIndex's transactional form: it performs the same
// build-and-backfill but returns a closure that drops the index again.
func (t *Table) CreateIndexUndo(name, column string, kind IndexKind, path string) (func(), error) {
	if err := t.CreateIndex(name, column, kind, path); err != nil {
		return nil, err
	}
	return func() { delete(t.Indexes, name) }, nil
}
