package queryexec

import (
	"testing"

	"github.com/kaelbridge/tridb/internal/relational"
	"github.com/kaelbridge/tridb/internal/sqlgrammar"
)

func newUsersOrdersTables(t *testing.T) MapTables {
	t.Helper()
	users, err := relational.NewTable("users", []relational.Column{
		{Name: "id", Type: relational.TypeInt, IsPK: true},
		{Name: "name", Type: relational.TypeString},
		{Name: "age", Type: relational.TypeInt},
	})
	if err != nil {
		t.Fatal(err)
	}
	users.Insert([]string{"1", `"alice"`, "30"})
	users.Insert([]string{"2", `"bob"`, "25"})
	users.Insert([]string{"3", `"carol"`, "30"})

	orders, err := relational.NewTable("orders", []relational.Column{
		{Name: "id", Type: relational.TypeInt, IsPK: true},
		{Name: "user_id", Type: relational.TypeInt},
		{Name: "total", Type: relational.TypeFloat},
	})
	if err != nil {
		t.Fatal(err)
	}
	orders.Insert([]string{"1", "1", "9.5"})
	orders.Insert([]string{"2", "2", "4"})

	return MapTables{"users": users, "orders": orders}
}

func parseSelect(t *testing.T, q string) *sqlgrammar.SelectStmt {
	t.Helper()
	stmt, err := sqlgrammar.ParseStatement(q)
	if err != nil {
		t.Fatal(err)
	}
	return stmt.Select
}

func TestSelectStar(t *testing.T) {
	tables := newUsersOrdersTables(t)
	rows, err := Select(tables, parseSelect(t, "SELECT * FROM users"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{"users.id", "users.name", "users.age"}
	for i, c := range want {
		if rows[0].Columns[i] != c {
			t.Errorf("column %d: expected %q, got %q", i, c, rows[0].Columns[i])
		}
	}
}

func TestSelectWhereUsesIndexRange(t *testing.T) {
	tables := newUsersOrdersTables(t)
	usersTbl, _ := tables.Table("users")
	if err := usersTbl.CreateIndex("by_age", "age", relational.IndexBTree, ""); err != nil {
		t.Fatal(err)
	}

	rows, err := Select(tables, parseSelect(t, "SELECT * FROM users WHERE age >= 30"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows aged >= 30, got %d", len(rows))
	}
}

func TestSelectJoin(t *testing.T) {
	tables := newUsersOrdersTables(t)
	rows, err := Select(tables, parseSelect(t, "SELECT users.name, orders.total FROM users JOIN orders ON users.id = orders.user_id"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 joined rows, got %d", len(rows))
	}
	for _, rr := range rows {
		if len(rr.Columns) != 2 || rr.Columns[0] != "users.name" || rr.Columns[1] != "orders.total" {
			t.Errorf("unexpected projection: %+v", rr.Columns)
		}
	}
}

func TestSelectGroupByHaving(t *testing.T) {
	tables := newUsersOrdersTables(t)
	rows, err := Select(tables, parseSelect(t, "SELECT age, COUNT(*) FROM users GROUP BY age HAVING COUNT(*) > 1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 group to pass HAVING, got %d", len(rows))
	}
	rr := rows[0]
	if rr.Values[0].Int64 != 30 {
		t.Errorf("expected the age=30 group, got %+v", rr.Values[0])
	}
	if rr.Values[1].Int64 != 2 {
		t.Errorf("expected count 2, got %+v", rr.Values[1])
	}
}

func TestSelectOrderByLimitOffset(t *testing.T) {
	tables := newUsersOrdersTables(t)
	rows, err := Select(tables, parseSelect(t, "SELECT name, age FROM users ORDER BY age DESC LIMIT 1 OFFSET 1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after OFFSET 1 LIMIT 1, got %d", len(rows))
	}
	// ages sorted DESC: 30, 30, 25 -- offset 1 skips the first 30, leaving
	// the second 30 (carol, insertion order tiebreak) as the result.
	if rows[0].Values[1].Int64 != 30 {
		t.Errorf("expected age 30 at offset 1, got %+v", rows[0].Values[1])
	}
}

func TestSelectUnknownTable(t *testing.T) {
	tables := newUsersOrdersTables(t)
	if _, err := Select(tables, parseSelect(t, "SELECT * FROM ghosts")); err == nil {
		t.Error("expected Select on an unknown table to fail")
	}
}
