package queryexec

import (
	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/sqlgrammar"
)

// Update applies stmt's assignments to every row of its table matching
// Where, returning the number of rows touched and one undo closure per
// touched row (composed in order by the caller for rollback).
func Update(tables Tables, stmt *sqlgrammar.UpdateStmt) (int, []func(), error) {
	table, ok := tables.Table(stmt.Table)
	if !ok {
		return 0, nil, corerr.Wrap(corerr.ErrNotFound, "table %q does not exist", stmt.Table)
	}

	var undos []func()
	n := 0
	for _, rowIdx := range pickCandidates(table, stmt.Where) {
		if table.Rows[rowIdx].Deleted {
			continue
		}
		r := rowCtx{rows: map[string]int{stmt.Table: rowIdx}, tables: tables}
		ok, err := evalPredicate(stmt.Where, rowResolver(r))
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				undos[i]()
			}
			return 0, nil, err
		}
		if !ok {
			continue
		}
		undo, err := table.UpdateRowValues(rowIdx, stmt.Assignments)
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				undos[i]()
			}
			return 0, nil, err
		}
		undos = append(undos, undo)
		n++
	}
	return n, undos, nil
}

// Delete tombstones every row of stmt's table matching Where, returning the
// number of rows touched and one undo closure per touched row.
func Delete(tables Tables, stmt *sqlgrammar.DeleteStmt) (int, []func(), error) {
	table, ok := tables.Table(stmt.Table)
	if !ok {
		return 0, nil, corerr.Wrap(corerr.ErrNotFound, "table %q does not exist", stmt.Table)
	}

	var undos []func()
	n := 0
	for _, rowIdx := range pickCandidates(table, stmt.Where) {
		if table.Rows[rowIdx].Deleted {
			continue
		}
		r := rowCtx{rows: map[string]int{stmt.Table: rowIdx}, tables: tables}
		ok, err := evalPredicate(stmt.Where, rowResolver(r))
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				undos[i]()
			}
			return 0, nil, err
		}
		if !ok {
			continue
		}
		undos = append(undos, table.TombstoneRow(rowIdx))
		n++
	}
	return n, undos, nil
}
