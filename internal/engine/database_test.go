package engine

import (
	"testing"

	"github.com/kaelbridge/tridb/internal/relational"
)

func newTable(t *testing.T, name string) *relational.Table {
	tbl, err := relational.NewTable(name, []relational.Column{
		{Name: "id", Type: relational.TypeInt, IsPK: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestCreateTableRejectsDuplicate(t *testing.T) {
	db := New("data")
	db.Lock()
	defer db.Unlock()

	if err := db.CreateTable(newTable(t, "u")); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateTable(newTable(t, "u")); err == nil {
		t.Error("expected creating a second table with the same name to fail")
	}
}

func TestTableLookupAndDrop(t *testing.T) {
	db := New("data")
	db.Lock()
	defer db.Unlock()

	if _, ok := db.Table("u"); ok {
		t.Fatal("expected no table before creation")
	}
	if err := db.CreateTable(newTable(t, "u")); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.Table("u"); !ok {
		t.Fatal("expected the table to be found after creation")
	}
	if !db.DropTable("u") {
		t.Error("expected DropTable to report true for an existing table")
	}
	if db.DropTable("u") {
		t.Error("expected a second DropTable to report false")
	}
}

func TestTableNamesListsAll(t *testing.T) {
	db := New("data")
	db.Lock()
	defer db.Unlock()

	if err := db.CreateTable(newTable(t, "a")); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateTable(newTable(t, "b")); err != nil {
		t.Fatal(err)
	}
	names := db.TableNames()
	if len(names) != 2 {
		t.Fatalf("TableNames() = %v, want 2 entries", names)
	}
}
