package relational

import "testing"

func newUsersTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable("users", []Column{
		{Name: "id", Type: TypeInt, IsPK: true},
		{Name: "name", Type: TypeString},
		{Name: "age", Type: TypeInt},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestNewTableRejectsMultiplePKs(t *testing.T) {
	_, err := NewTable("bad", []Column{
		{Name: "a", Type: TypeInt, IsPK: true},
		{Name: "b", Type: TypeInt, IsPK: true},
	})
	if err == nil {
		t.Error("expected NewTable to reject more than one primary key column")
	}
}

func TestColumnLookup(t *testing.T) {
	tbl := newUsersTable(t)
	if tbl.ColumnIndex("name") != 1 {
		t.Error("expected name at index 1")
	}
	if tbl.ColumnIndex("missing") != -1 {
		t.Error("expected -1 for a missing column")
	}
	if _, err := tbl.Column("missing"); err == nil {
		t.Error("expected Column to fail on a missing column")
	}
}

func TestAddColumnPadsExistingRows(t *testing.T) {
	tbl := newUsersTable(t)
	tbl.Insert([]string{"1", "alice", "30"})

	if err := tbl.AddColumn(Column{Name: "email", Type: TypeString}); err != nil {
		t.Fatal(err)
	}
	if len(tbl.Rows[0].Values) != 4 {
		t.Fatalf("expected 4 values after AddColumn, got %d", len(tbl.Rows[0].Values))
	}
	if !tbl.Rows[0].Values[3].IsNull() {
		t.Error("expected the new column's value to be Null on an existing row")
	}
}

func TestAddColumnRejectsDuplicateName(t *testing.T) {
	tbl := newUsersTable(t)
	if err := tbl.AddColumn(Column{Name: "name", Type: TypeString}); err == nil {
		t.Error("expected AddColumn to reject a name already in the schema")
	}
}

func TestAddColumnUndo(t *testing.T) {
	tbl := newUsersTable(t)
	tbl.Insert([]string{"1", "alice", "30"})

	undo, err := tbl.AddColumnUndo(Column{Name: "email", Type: TypeString})
	if err != nil {
		t.Fatal(err)
	}
	undo()

	if len(tbl.Columns) != 3 {
		t.Errorf("expected schema restored to 3 columns, got %d", len(tbl.Columns))
	}
	if len(tbl.Rows[0].Values) != 3 {
		t.Errorf("expected row restored to 3 values, got %d", len(tbl.Rows[0].Values))
	}
}

func TestDropColumnRejectsPK(t *testing.T) {
	tbl := newUsersTable(t)
	if err := tbl.DropColumn("id"); err == nil {
		t.Error("expected DropColumn to reject dropping the primary key")
	}
}

func TestDropColumnUndoRestoresValuesAndIndexes(t *testing.T) {
	tbl := newUsersTable(t)
	tbl.Insert([]string{"1", "alice", "30"})
	tbl.Insert([]string{"2", "bob", "25"})
	if err := tbl.CreateIndex("by_age", "age", IndexBTree, ""); err != nil {
		t.Fatal(err)
	}

	undo, err := tbl.DropColumnUndo("age")
	if err != nil {
		t.Fatal(err)
	}
	if tbl.ColumnIndex("age") != -1 {
		t.Error("expected age column gone after drop")
	}
	if _, ok := tbl.Indexes["by_age"]; ok {
		t.Error("expected the index on age to be dropped along with the column")
	}

	undo()
	if tbl.ColumnIndex("age") == -1 {
		t.Error("expected age column restored after undo")
	}
	if _, ok := tbl.Indexes["by_age"]; !ok {
		t.Error("expected the index on age restored after undo")
	}
	ageIdx := tbl.ColumnIndex("age")
	if tbl.Rows[0].Values[ageIdx].Int64 != 30 {
		t.Error("expected row values restored at the original position")
	}
}

func TestLiveRowIndicesSkipsTombstones(t *testing.T) {
	tbl := newUsersTable(t)
	tbl.Insert([]string{"1", "alice", "30"})
	tbl.Insert([]string{"2", "bob", "25"})
	tbl.TombstoneRow(0)

	live := tbl.LiveRowIndices()
	if len(live) != 1 || live[0] != 1 {
		t.Errorf("expected only row 1 live, got %v", live)
	}
}
