// Package relational implements the structured store: named tables with
// schema, rows, a primary-key index, and secondary indexes, plus the DDL/DML
// operations the query executor builds on.
package relational

import (
	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/value"
)

// ColumnType is one of the eight declared column types from the design's
// data model.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeString
	TypeFloat
	TypeBool
	TypeDateTime
	TypeBlob
	TypeVector
	TypeJSON
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeDateTime:
		return "datetime"
	case TypeBlob:
		return "blob"
	case TypeVector:
		return "vector"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

func (t ColumnType) valueKind() value.Kind {
	switch t {
	case TypeInt:
		return value.KindInt64
	case TypeString:
		return value.KindString
	case TypeFloat:
		return value.KindFloat64
	case TypeBool:
		return value.KindBool
	case TypeDateTime:
		return value.KindDateTime
	case TypeBlob:
		return value.KindBlob
	case TypeVector:
		return value.KindVector
	case TypeJSON:
		return value.KindJSON
	default:
		return value.KindNull
	}
}

// ParseColumnType maps a DDL type token (case-insensitive) to a ColumnType.
func ParseColumnType(tok string) (ColumnType, error) {
	switch tok {
	case "int", "INT", "integer", "INTEGER":
		return TypeInt, nil
	case "string", "STRING", "text", "TEXT":
		return TypeString, nil
	case "float", "FLOAT", "real", "REAL":
		return TypeFloat, nil
	case "bool", "BOOL", "boolean", "BOOLEAN":
		return TypeBool, nil
	case "datetime", "DATETIME":
		return TypeDateTime, nil
	case "blob", "BLOB":
		return TypeBlob, nil
	case "vector", "VECTOR":
		return TypeVector, nil
	case "json", "JSON":
		return TypeJSON, nil
	default:
		return 0, corerr.Wrap(corerr.ErrSchemaViolation, "unknown column type %q", tok)
	}
}

// ForeignKey records an advisory (unenforced) reference to another table's
// column.
type ForeignKey struct {
	Table  string
	Column string
}

// Column is one column's declaration in a table's schema.
type Column struct {
	Name string
	Type ColumnType
	IsPK bool
	FK   *ForeignKey
}

// Row is one row of a table. Deleted rows are tombstones: they keep their
// slot (and therefore their row index) so every secondary index referencing
// that index stays valid.
type Row struct {
	Values  []value.Value
	Deleted bool
}

// Table is a named, schema'd collection of rows plus its primary-key and
// secondary indexes.
type Table struct {
	Name     string
	Columns  []Column
	PKColumn string // "" if the table has no declared primary key
	Rows     []*Row
	PKIndex  map[string]int // PK value key -> row index
	Indexes  map[string]*Index
}

// NewTable constructs an empty table from its column declarations,
// validating the "at most one PK" invariant.
func NewTable(name string, columns []Column) (*Table, error) {
	pkCount := 0
	pkCol := ""
	for _, c := range columns {
		if c.IsPK {
			pkCount++
			pkCol = c.Name
		}
	}
	if pkCount > 1 {
		return nil, corerr.Wrap(corerr.ErrSchemaViolation, "table %q declares more than one primary key", name)
	}

	return &Table{
		Name:     name,
		Columns:  append([]Column{}, columns...),
		PKColumn: pkCol,
		PKIndex:  map[string]int{},
		Indexes:  map[string]*Index{},
	}, nil
}

// ColumnIndex returns the position of col in the schema, or -1.
func (t *Table) ColumnIndex(col string) int {
	for i, c := range t.Columns {
		if c.Name == col {
			return i
		}
	}
	return -1
}

// Column looks up a column's declaration by name.
func (t *Table) Column(col string) (Column, error) {
	i := t.ColumnIndex(col)
	if i == -1 {
		return Column{}, corerr.Wrap(corerr.ErrSchemaViolation, "column %q does not exist on table %q", col, t.Name)
	}
	return t.Columns[i], nil
}

// AddColumn appends a new column, padding every existing row (live or
// tombstoned) with Null in that position.
func (t *Table) AddColumn(col Column) error {
	if t.ColumnIndex(col.Name) != -1 {
		return corerr.Wrap(corerr.ErrSchemaViolation, "column %q already exists on table %q", col.Name, t.Name)
	}
	t.Columns = append(t.Columns, col)
	for _, r := range t.Rows {
		r.Values = append(r.Values, value.Null())
	}
	return nil
}

// AddColumnUndo is AddColumn's transactional form: it performs the same
// append but returns a closure that drops the column again.
func (t *Table) AddColumnUndo(col Column) (func(), error) {
	if err := t.AddColumn(col); err != nil {
		return nil, err
	}
	return func() {
		_ = t.DropColumn(col.Name)
	}, nil
}

// DropColumn removes a column from the schema and from every row, and
// drops any index defined on it. Rejects dropping the primary key.
func (t *Table) DropColumn(name string) error {
	_, err := t.DropColumnUndo(name)
	return err
}

// DropColumnUndo is DropColumn's transactional form: it performs the same
// drop but returns a closure that restores the column (its declaration, its
// position, every row's value at that position, and any index defined on
// it) so a failed COMMIT can undo it exactly.
func (t *Table) DropColumnUndo(name string) (func(), error) {
	i := t.ColumnIndex(name)
	if i == -1 {
		return nil, corerr.Wrap(corerr.ErrSchemaViolation, "column %q does not exist on table %q", name, t.Name)
	}
	if t.Columns[i].IsPK {
		return nil, corerr.Wrap(corerr.ErrSchemaViolation, "cannot drop primary key column %q", name)
	}

	col := t.Columns[i]
	values := make([]value.Value, len(t.Rows))
	for ri, r := range t.Rows {
		values[ri] = r.Values[i]
	}
	var droppedIndexes []*Index
	for idxName, idx := range t.Indexes {
		if idx.Column == name {
			droppedIndexes = append(droppedIndexes, idx)
			delete(t.Indexes, idxName)
		}
	}

	t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
	for _, r := range t.Rows {
		r.Values = append(r.Values[:i], r.Values[i+1:]...)
	}

	undo := func() {
		cols := append([]Column{}, t.Columns[:i]...)
		cols = append(cols, col)
		cols = append(cols, t.Columns[i:]...)
		t.Columns = cols
		for ri, r := range t.Rows {
			rv := append([]value.Value{}, r.Values[:i]...)
			rv = append(rv, values[ri])
			rv = append(rv, r.Values[i:]...)
			r.Values = rv
		}
		for _, idx := range droppedIndexes {
			t.Indexes[idx.Name] = idx
		}
	}
	return undo, nil
}

// LiveRowIndices returns the indices of all non-tombstoned rows, in
// insertion order.
func (t *Table) LiveRowIndices() []int {
	var out []int
	for i, r := range t.Rows {
		if !r.Deleted {
			out = append(out, i)
		}
	}
	return out
}
