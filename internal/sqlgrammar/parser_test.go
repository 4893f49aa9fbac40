package sqlgrammar

import "testing"

func TestParseCreateTable(t *testing.T) {
	stmt, err := ParseStatement("CREATE TABLE users id:int:pk name:string age:int")
	if err != nil {
		t.Fatal(err)
	}
	if stmt.Kind != StmtCreateTable {
		t.Fatal("expected StmtCreateTable")
	}
	ct := stmt.CreateTable
	if ct.Table != "users" {
		t.Errorf("expected table users, got %q", ct.Table)
	}
	if len(ct.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(ct.Columns))
	}
	if !ct.Columns[0].IsPK || ct.Columns[0].Name != "id" || ct.Columns[0].Type != "int" {
		t.Errorf("unexpected id column decl: %+v", ct.Columns[0])
	}
}

func TestParseCreateTableWithFK(t *testing.T) {
	stmt, err := ParseStatement("CREATE TABLE orders id:int:pk user_id:int:fk(users.id)")
	if err != nil {
		t.Fatal(err)
	}
	fkCol := stmt.CreateTable.Columns[1]
	if fkCol.FKRef != "users.id" {
		t.Errorf("expected fk ref users.id, got %q", fkCol.FKRef)
	}
}

func TestParseCreateIndex(t *testing.T) {
	stmt, err := ParseStatement("CREATE INDEX by_age ON users(age) USING BTREE")
	if err != nil {
		t.Fatal(err)
	}
	ci := stmt.CreateIndex
	if ci.Name != "by_age" || ci.Table != "users" || ci.Column != "age" || ci.Kind != "btree" {
		t.Errorf("unexpected CreateIndexStmt: %+v", ci)
	}
}

func TestParseCreateIndexJSONPath(t *testing.T) {
	stmt, err := ParseStatement("CREATE INDEX by_status ON docs(data->status)")
	if err != nil {
		t.Fatal(err)
	}
	ci := stmt.CreateIndex
	if ci.Column != "data" || ci.Path != "status" || ci.Kind != "jsonpath" {
		t.Errorf("unexpected CreateIndexStmt: %+v", ci)
	}
}

func TestParseAlterTableAdd(t *testing.T) {
	stmt, err := ParseStatement("ALTER TABLE users ADD email:string")
	if err != nil {
		t.Fatal(err)
	}
	if stmt.Kind != StmtAlterTableAdd {
		t.Fatal("expected StmtAlterTableAdd")
	}
	if stmt.AlterTable.Column.Name != "email" {
		t.Errorf("unexpected column name: %q", stmt.AlterTable.Column.Name)
	}
}

func TestParseAlterTableDrop(t *testing.T) {
	stmt, err := ParseStatement("ALTER TABLE users DROP email")
	if err != nil {
		t.Fatal(err)
	}
	if stmt.Kind != StmtAlterTableDrop || stmt.AlterTable.Drop != "email" {
		t.Errorf("unexpected AlterTableStmt: %+v", stmt.AlterTable)
	}
}

func TestParseInsert(t *testing.T) {
	stmt, err := ParseStatement(`INSERT users 1 "alice" 30`)
	if err != nil {
		t.Fatal(err)
	}
	ins := stmt.Insert
	if ins.Table != "users" || len(ins.Values) != 3 {
		t.Fatalf("unexpected InsertStmt: %+v", ins)
	}
	if ins.Values[1] != `"alice"` {
		t.Errorf("expected quoted literal preserved, got %q", ins.Values[1])
	}
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := ParseStatement("SELECT * FROM users WHERE age > 18")
	if err != nil {
		t.Fatal(err)
	}
	sel := stmt.Select
	if !sel.Star || sel.Table != "users" {
		t.Fatalf("unexpected SelectStmt: %+v", sel)
	}
	if sel.Where == nil || sel.Where.Kind != PredComparison {
		t.Fatal("expected a single comparison predicate")
	}
	if sel.Where.Comparison.Op != OpGt {
		t.Errorf("expected >, got %v", sel.Where.Comparison.Op)
	}
}

func TestParseSelectProjectionAndJoin(t *testing.T) {
	stmt, err := ParseStatement("SELECT users.name, orders.total FROM users JOIN orders ON users.id = orders.user_id")
	if err != nil {
		t.Fatal(err)
	}
	sel := stmt.Select
	if len(sel.Projection) != 2 {
		t.Fatalf("expected 2 projected columns, got %d", len(sel.Projection))
	}
	if len(sel.Joins) != 1 || sel.Joins[0].Table != "orders" {
		t.Fatalf("unexpected joins: %+v", sel.Joins)
	}
}

func TestParseSelectGroupHavingOrderLimitOffset(t *testing.T) {
	stmt, err := ParseStatement("SELECT COUNT(*) FROM users GROUP BY age HAVING COUNT(*) > 1 ORDER BY age DESC LIMIT 10 OFFSET 5")
	if err != nil {
		t.Fatal(err)
	}
	sel := stmt.Select
	if len(sel.Projection) != 1 || !sel.Projection[0].IsAgg || sel.Projection[0].AggFunc != "COUNT" || !sel.Projection[0].AggStar {
		t.Fatalf("unexpected projection: %+v", sel.Projection)
	}
	if len(sel.GroupBy) != 1 || sel.GroupBy[0].Column != "age" {
		t.Fatalf("unexpected group by: %+v", sel.GroupBy)
	}
	if sel.Having == nil {
		t.Fatal("expected a HAVING predicate")
	}
	if len(sel.OrderBy) != 1 || !sel.OrderBy[0].Desc {
		t.Fatalf("unexpected order by: %+v", sel.OrderBy)
	}
	if !sel.HasLimit || sel.Limit != 10 || sel.Offset != 5 {
		t.Errorf("expected LIMIT 10 OFFSET 5, got limit=%d offset=%d hasLimit=%v", sel.Limit, sel.Offset, sel.HasLimit)
	}
}

func TestParseSelectAndOrPredicate(t *testing.T) {
	stmt, err := ParseStatement("SELECT * FROM users WHERE age > 18 AND name = bob OR age < 5")
	if err != nil {
		t.Fatal(err)
	}
	where := stmt.Select.Where
	if where.Kind != PredOr {
		t.Fatalf("expected left-to-right folding to end in an OR at the root, got %v", where.Kind)
	}
}

func TestParseSelectParenthesizedPredicate(t *testing.T) {
	stmt, err := ParseStatement("SELECT * FROM users WHERE (age > 18 AND name = bob)")
	if err != nil {
		t.Fatal(err)
	}
	where := stmt.Select.Where
	if where.Kind != PredAnd {
		t.Fatalf("expected the parenthesized AND predicate, got %v", where.Kind)
	}
}

func TestParseSelectInPredicate(t *testing.T) {
	stmt, err := ParseStatement("SELECT * FROM users WHERE age IN (18, 21, 30)")
	if err != nil {
		t.Fatal(err)
	}
	cmp := stmt.Select.Where.Comparison
	if cmp.Op != OpIn || len(cmp.InValues) != 3 {
		t.Fatalf("unexpected IN comparison: %+v", cmp)
	}
}

func TestParseUpdate(t *testing.T) {
	stmt, err := ParseStatement(`UPDATE users SET age = 31, name = "Alice" WHERE id = 1`)
	if err != nil {
		t.Fatal(err)
	}
	upd := stmt.Update
	if upd.Table != "users" || len(upd.Assignments) != 2 {
		t.Fatalf("unexpected UpdateStmt: %+v", upd)
	}
	if upd.Assignments["age"] != "31" {
		t.Errorf("unexpected age assignment: %q", upd.Assignments["age"])
	}
	if upd.Where == nil {
		t.Fatal("expected a WHERE predicate")
	}
}

func TestParseDelete(t *testing.T) {
	stmt, err := ParseStatement("DELETE FROM users WHERE id = 1")
	if err != nil {
		t.Fatal(err)
	}
	if stmt.Delete.Table != "users" || stmt.Delete.Where == nil {
		t.Fatalf("unexpected DeleteStmt: %+v", stmt.Delete)
	}
}

func TestParseSearch(t *testing.T) {
	stmt, err := ParseStatement("SEARCH docs embedding [0.1, 0.2, 0.3] 5")
	if err != nil {
		t.Fatal(err)
	}
	s := stmt.Search
	if s.Table != "docs" || s.Column != "embedding" || s.K != 5 {
		t.Fatalf("unexpected SearchStmt: %+v", s)
	}
	if len(s.Vector) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(s.Vector))
	}
}

func TestParseStatementUnknownVerb(t *testing.T) {
	if _, err := ParseStatement("FROBNICATE users"); err == nil {
		t.Error("expected an unknown verb to fail parsing")
	}
}

func TestParseStatementEmpty(t *testing.T) {
	if _, err := ParseStatement(""); err == nil {
		t.Error("expected an empty statement to fail parsing")
	}
}
