package relational

import (
	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/value"
)

// Insert appends a new row built from rawValues (positional, matching
// schema column order), coercing each to its declared type. It returns the
// new row's index and an undo closure that reverses the insert (used by
// transaction rollback and by fatal-IO rollback on the write path).
func (t *Table) Insert(rawValues []string) (int, func(), error) {
	if len(rawValues) != len(t.Columns) {
		return 0, nil, corerr.Wrap(corerr.ErrSchemaViolation, "table %q expects %d values, got %d", t.Name, len(t.Columns), len(rawValues))
	}

	values := make([]value.Value, len(t.Columns))
	for i, col := range t.Columns {
		v, err := ParseLiteral(col.Type, rawValues[i])
		if err != nil {
			return 0, nil, err
		}
		values[i] = v
	}

	var pkKey string
	if t.PKColumn != "" {
		pkIdx := t.ColumnIndex(t.PKColumn)
		if values[pkIdx].IsNull() {
			return 0, nil, corerr.Wrap(corerr.ErrSchemaViolation, "primary key column %q cannot be null", t.PKColumn)
		}
		pkKey = hashKey(values[pkIdx])
		if _, exists := t.PKIndex[pkKey]; exists {
			return 0, nil, corerr.Wrap(corerr.ErrDuplicateKey, "table %q already has a row with this primary key", t.Name)
		}
	}

	rowIdx := len(t.Rows)
	t.Rows = append(t.Rows, &Row{Values: values})
	if t.PKColumn != "" {
		t.PKIndex[pkKey] = rowIdx
	}
	for _, idx := range t.Indexes {
		colIdx := t.ColumnIndex(idx.Column)
		idx.Insert(values[colIdx], rowIdx)
	}

	undo := func() {
		t.Rows[rowIdx].Deleted = true
		if t.PKColumn != "" {
			delete(t.PKIndex, pkKey)
		}
		for _, idx := range t.Indexes {
			colIdx := t.ColumnIndex(idx.Column)
			idx.Remove(values[colIdx], rowIdx)
		}
	}
	return rowIdx, undo, nil
}

// UpdateRowValues applies assignments (column name -> raw literal) to the
// row at rowIdx, re-coercing types, re-validating PK uniqueness on a PK
// change, and updating every affected secondary index. It returns an undo
// closure restoring the row's previous values and index entries.
func (t *Table) UpdateRowValues(rowIdx int, assignments map[string]string) (func(), error) {
	row := t.Rows[rowIdx]
	oldValues := append([]value.Value{}, row.Values...)

	newValues := append([]value.Value{}, row.Values...)
	for col, raw := range assignments {
		colIdx := t.ColumnIndex(col)
		if colIdx == -1 {
			return nil, corerr.Wrap(corerr.ErrSchemaViolation, "column %q does not exist on table %q", col, t.Name)
		}
		v, err := ParseLiteral(t.Columns[colIdx].Type, raw)
		if err != nil {
			return nil, err
		}
		newValues[colIdx] = v
	}

	var oldPKKey, newPKKey string
	pkChanged := false
	if t.PKColumn != "" {
		pkIdx := t.ColumnIndex(t.PKColumn)
		oldPKKey = hashKey(oldValues[pkIdx])
		newPKKey = hashKey(newValues[pkIdx])
		if oldPKKey != newPKKey {
			pkChanged = true
			if newValues[pkIdx].IsNull() {
				return nil, corerr.Wrap(corerr.ErrSchemaViolation, "primary key column %q cannot be null", t.PKColumn)
			}
			if _, exists := t.PKIndex[newPKKey]; exists {
				return nil, corerr.Wrap(corerr.ErrDuplicateKey, "table %q already has a row with this primary key", t.Name)
			}
		}
	}

	for _, idx := range t.Indexes {
		colIdx := t.ColumnIndex(idx.Column)
		idx.Remove(oldValues[colIdx], rowIdx)
	}
	if pkChanged {
		delete(t.PKIndex, oldPKKey)
		t.PKIndex[newPKKey] = rowIdx
	}

	row.Values = newValues
	for _, idx := range t.Indexes {
		colIdx := t.ColumnIndex(idx.Column)
		idx.Insert(newValues[colIdx], rowIdx)
	}

	undo := func() {
		for _, idx := range t.Indexes {
			colIdx := t.ColumnIndex(idx.Column)
			idx.Remove(newValues[colIdx], rowIdx)
		}
		if pkChanged {
			delete(t.PKIndex, newPKKey)
			t.PKIndex[oldPKKey] = rowIdx
		}
		row.Values = oldValues
		for _, idx := range t.Indexes {
			colIdx := t.ColumnIndex(idx.Column)
			idx.Insert(oldValues[colIdx], rowIdx)
		}
	}
	return undo, nil
}

// TombstoneRow marks the row at rowIdx deleted and removes it from the PK
// and secondary indexes, without shifting any row index. It returns an
// undo closure that resurrects the row.
func (t *Table) TombstoneRow(rowIdx int) func() {
	row := t.Rows[rowIdx]
	values := row.Values

	var pkKey string
	if t.PKColumn != "" {
		pkIdx := t.ColumnIndex(t.PKColumn)
		pkKey = hashKey(values[pkIdx])
		delete(t.PKIndex, pkKey)
	}
	for _, idx := range t.Indexes {
		colIdx := t.ColumnIndex(idx.Column)
		idx.Remove(values[colIdx], rowIdx)
	}
	row.Deleted = true

	return func() {
		row.Deleted = false
		if t.PKColumn != "" {
			t.PKIndex[pkKey] = rowIdx
		}
		for _, idx := range t.Indexes {
			colIdx := t.ColumnIndex(idx.Column)
			idx.Insert(values[colIdx], rowIdx)
		}
	}
}
