package sqlgrammar

import (
	"strconv"
	"strings"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/relational"
)

// cursor walks a token stream for recursive-descent parsing.
type cursor struct {
	toks []string
	pos  int
}

func (c *cursor) done() bool { return c.pos >= len(c.toks) }

func (c *cursor) peek() string {
	if c.done() {
		return ""
	}
	return c.toks[c.pos]
}

func (c *cursor) next() string {
	t := c.peek()
	c.pos++
	return t
}

func (c *cursor) peekFold(kw string) bool {
	return strings.EqualFold(c.peek(), kw)
}

func (c *cursor) expect(kw string) error {
	if !c.peekFold(kw) {
		return corerr.Wrap(corerr.ErrParse, "expected %q, got %q", kw, c.peek())
	}
	c.pos++
	return nil
}

// ParseStatement tokenizes and parses a single statement line, dispatching
// on its leading verb.
func ParseStatement(line string) (Stmt, error) {
	toks := Tokenize(line)
	if len(toks) == 0 {
		return Stmt{}, corerr.Wrap(corerr.ErrParse, "empty statement")
	}
	c := &cursor{toks: toks}
	verb := strings.ToUpper(c.next())

	switch verb {
	case "CREATE":
		return parseCreate(c)
	case "ALTER":
		return parseAlter(c)
	case "INSERT":
		return parseInsert(c)
	case "SELECT":
		return parseSelect(c)
	case "UPDATE":
		return parseUpdate(c)
	case "DELETE":
		return parseDelete(c)
	case "SEARCH":
		return parseSearch(c)
	default:
		return Stmt{}, corerr.Wrap(corerr.ErrParse, "unknown statement verb %q", verb)
	}
}

func parseCreate(c *cursor) (Stmt, error) {
	switch strings.ToUpper(c.peek()) {
	case "TABLE":
		c.next()
		return parseCreateTable(c)
	case "INDEX":
		c.next()
		return parseCreateIndex(c)
	default:
		return Stmt{}, corerr.Wrap(corerr.ErrParse, "expected TABLE or INDEX after CREATE, got %q", c.peek())
	}
}

func parseColumnDecl(tok string) ColumnDecl {
	parts := strings.Split(tok, ":")
	decl := ColumnDecl{Name: parts[0]}
	if len(parts) > 1 {
		decl.Type = parts[1]
	}
	for _, p := range parts[2:] {
		switch {
		case strings.EqualFold(p, "pk"):
			decl.IsPK = true
		case strings.HasPrefix(strings.ToLower(p), "fk(") && strings.HasSuffix(p, ")"):
			decl.FKRef = p[3 : len(p)-1]
		}
	}
	return decl
}

func parseCreateTable(c *cursor) (Stmt, error) {
	table := c.next()
	if table == "" {
		return Stmt{}, corerr.Wrap(corerr.ErrParse, "CREATE TABLE requires a table name")
	}
	var cols []ColumnDecl
	for !c.done() {
		tok := c.next()
		// The tokenizer splits "fk(users.id)" at its parens; rejoin them.
		if c.peek() == "(" {
			for !c.done() {
				t := c.next()
				tok += t
				if t == ")" {
					break
				}
			}
		}
		cols = append(cols, parseColumnDecl(tok))
	}
	if len(cols) == 0 {
		return Stmt{}, corerr.Wrap(corerr.ErrParse, "CREATE TABLE requires at least one column")
	}
	return Stmt{Kind: StmtCreateTable, CreateTable: &CreateTableStmt{Table: table, Columns: cols}}, nil
}

func parseCreateIndex(c *cursor) (Stmt, error) {
	name := c.next()
	if err := c.expect("ON"); err != nil {
		return Stmt{}, err
	}
	table := c.next()
	colExpr := table
	// "table(column)" or "table(column->path)" may arrive as one token or
	// split around the parens depending on spacing; handle both.
	if idx := strings.IndexByte(table, '('); idx >= 0 {
		colExpr = table[idx+1:]
		table = table[:idx]
		colExpr = strings.TrimSuffix(colExpr, ")")
	} else if c.peekFold("(") {
		c.next()
		colExpr = c.next()
		if err := c.expect(")"); err != nil {
			return Stmt{}, err
		}
	}
	colExpr = strings.TrimSuffix(colExpr, ")")
	col, path, _ := splitJSONPath(colExpr)

	kind := "hash"
	if c.peekFold("USING") {
		c.next()
		kind = strings.ToLower(c.next())
	} else if path != "" {
		kind = "jsonpath"
	}
	return Stmt{Kind: StmtCreateIndex, CreateIndex: &CreateIndexStmt{
		Name: name, Table: table, Column: col, Path: path, Kind: kind,
	}}, nil
}

func splitJSONPath(tok string) (col, path string, ok bool) {
	if i := strings.Index(tok, "->"); i >= 0 {
		return tok[:i], strings.ReplaceAll(tok[i+2:], "->", "."), true
	}
	return tok, "", false
}

func parseAlter(c *cursor) (Stmt, error) {
	if err := c.expect("TABLE"); err != nil {
		return Stmt{}, err
	}
	table := c.next()
	switch strings.ToUpper(c.next()) {
	case "ADD":
		decl := parseColumnDecl(c.next())
		return Stmt{Kind: StmtAlterTableAdd, AlterTable: &AlterTableStmt{Table: table, Column: decl}}, nil
	case "DROP":
		col := c.next()
		return Stmt{Kind: StmtAlterTableDrop, AlterTable: &AlterTableStmt{Table: table, Drop: col}}, nil
	default:
		return Stmt{}, corerr.Wrap(corerr.ErrParse, "expected ADD or DROP in ALTER TABLE")
	}
}

func parseInsert(c *cursor) (Stmt, error) {
	if c.peekFold("INTO") {
		c.next()
	}
	table := c.next()
	var values []string
	for !c.done() {
		values = append(values, c.next())
	}
	return Stmt{Kind: StmtInsert, Insert: &InsertStmt{Table: table, Values: values}}, nil
}

func parseExprToken(tok string) Expr {
	col, path, hasPath := splitJSONPath(tok)
	if hasPath {
		tbl, c := splitTableCol(col)
		return Expr{Table: tbl, Column: c, JSONPath: path}
	}
	if looksLikeColumnRef(tok) {
		tbl, c := splitTableCol(tok)
		return Expr{Table: tbl, Column: c}
	}
	return Expr{IsLiteral: true, Literal: tok}
}

func splitTableCol(tok string) (table, col string) {
	if i := strings.IndexByte(tok, '.'); i >= 0 {
		return tok[:i], tok[i+1:]
	}
	return "", tok
}

// looksLikeColumnRef is a best-effort heuristic: tokens that are quoted, or
// parse cleanly as a number, a bracketed literal, or a bare true/false/null,
// are literals; everything else made of identifier characters is a column
// reference. The planner resolves remaining ambiguity by column-name lookup.
func looksLikeColumnRef(tok string) bool {
	if tok == "" {
		return false
	}
	if relational.IsQuotedLiteral(tok) {
		return false
	}
	switch strings.ToLower(tok) {
	case "true", "false", "null":
		return false
	}
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return false
	}
	if strings.HasPrefix(tok, "[") || strings.HasPrefix(tok, "{") {
		return false
	}
	r := rune(tok[0])
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// parsePredicate parses a WHERE/HAVING/ON clause, combining comparisons
// with AND/OR strictly left-to-right (no operator precedence), honoring
// parentheses as explicit grouping.
func parsePredicate(c *cursor) (*Predicate, error) {
	left, err := parsePredicateAtom(c)
	if err != nil {
		return nil, err
	}
	for c.peekFold("AND") || c.peekFold("OR") {
		op := strings.ToUpper(c.next())
		right, err := parsePredicateAtom(c)
		if err != nil {
			return nil, err
		}
		kind := PredAnd
		if op == "OR" {
			kind = PredOr
		}
		left = &Predicate{Kind: kind, Left: left, Right: right}
	}
	return left, nil
}

func parsePredicateAtom(c *cursor) (*Predicate, error) {
	if c.peekFold("(") {
		c.next()
		p, err := parsePredicate(c)
		if err != nil {
			return nil, err
		}
		if err := c.expect(")"); err != nil {
			return nil, err
		}
		return p, nil
	}
	cmp, err := parseComparison(c)
	if err != nil {
		return nil, err
	}
	return &Predicate{Kind: PredComparison, Comparison: cmp}, nil
}

// parseOperand parses one side of a comparison, recognizing an aggregate
// function call (needed for HAVING clauses like "COUNT(*) > 1") ahead of a
// plain column reference or literal.
func parseOperand(c *cursor) (Expr, error) {
	if aggNames[strings.ToUpper(c.peek())] {
		save := c.pos
		e, err := parseProjExpr(c)
		if err == nil && e.IsAgg {
			return e, nil
		}
		c.pos = save
	}
	return parseExprToken(c.next()), nil
}

func parseComparison(c *cursor) (*Comparison, error) {
	left, err := parseOperand(c)
	if err != nil {
		return nil, err
	}
	opTok := c.next()
	var op CompOp
	switch strings.ToUpper(opTok) {
	case "=":
		op = OpEq
	case "!=", "<>":
		op = OpNeq
	case "<":
		op = OpLt
	case "<=":
		op = OpLte
	case ">":
		op = OpGt
	case ">=":
		op = OpGte
	case "LIKE":
		op = OpLike
	case "IN":
		op = OpIn
	default:
		return nil, corerr.Wrap(corerr.ErrParse, "unknown comparison operator %q", opTok)
	}

	cmp := &Comparison{Left: left, Op: op}
	if op == OpIn {
		if err := c.expect("("); err != nil {
			return nil, err
		}
		for !c.peekFold(")") {
			cmp.InValues = append(cmp.InValues, parseExprToken(c.next()))
			if c.peekFold(",") {
				c.next()
			}
		}
		if err := c.expect(")"); err != nil {
			return nil, err
		}
		return cmp, nil
	}
	cmp.Right = parseExprToken(c.next())
	return cmp, nil
}

var aggNames = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MAX": true, "MIN": true}

// parseProjExpr parses one SELECT projection item, recognizing aggregate
// function call syntax ("COUNT(*)", "SUM(col)") ahead of a plain column
// reference or literal.
func parseProjExpr(c *cursor) (Expr, error) {
	tok := c.next()
	if aggNames[strings.ToUpper(tok)] && c.peekFold("(") {
		c.next()
		e := Expr{IsAgg: true, AggFunc: strings.ToUpper(tok)}
		if c.peekFold("*") {
			c.next()
			e.AggStar = true
		} else {
			arg := parseExprToken(c.next())
			e.AggArg = &arg
		}
		if err := c.expect(")"); err != nil {
			return Expr{}, err
		}
		return e, nil
	}
	return parseExprToken(tok), nil
}

func parseSelect(c *cursor) (Stmt, error) {
	stmt := &SelectStmt{}
	if c.peekFold("*") {
		c.next()
		stmt.Star = true
	} else {
		for {
			e, err := parseProjExpr(c)
			if err != nil {
				return Stmt{}, err
			}
			stmt.Projection = append(stmt.Projection, e)
			if c.peekFold(",") {
				c.next()
				continue
			}
			break
		}
	}
	if err := c.expect("FROM"); err != nil {
		return Stmt{}, err
	}
	stmt.Table = c.next()

	for c.peekFold("JOIN") {
		c.next()
		jt := c.next()
		if err := c.expect("ON"); err != nil {
			return Stmt{}, err
		}
		cmp, err := parseComparison(c)
		if err != nil {
			return Stmt{}, err
		}
		stmt.Joins = append(stmt.Joins, JoinClause{Table: jt, On: *cmp})
	}

	if c.peekFold("WHERE") {
		c.next()
		p, err := parsePredicate(c)
		if err != nil {
			return Stmt{}, err
		}
		stmt.Where = p
	}

	if c.peekFold("GROUP") {
		c.next()
		if err := c.expect("BY"); err != nil {
			return Stmt{}, err
		}
		for {
			stmt.GroupBy = append(stmt.GroupBy, parseExprToken(c.next()))
			if c.peekFold(",") {
				c.next()
				continue
			}
			break
		}
	}

	if c.peekFold("HAVING") {
		c.next()
		p, err := parsePredicate(c)
		if err != nil {
			return Stmt{}, err
		}
		stmt.Having = p
	}

	if c.peekFold("ORDER") {
		c.next()
		if err := c.expect("BY"); err != nil {
			return Stmt{}, err
		}
		for {
			term := OrderTerm{Expr: parseExprToken(c.next())}
			if c.peekFold("ASC") {
				c.next()
			} else if c.peekFold("DESC") {
				c.next()
				term.Desc = true
			}
			stmt.OrderBy = append(stmt.OrderBy, term)
			if c.peekFold(",") {
				c.next()
				continue
			}
			break
		}
	}

	if c.peekFold("LIMIT") {
		c.next()
		n, err := strconv.Atoi(c.next())
		if err != nil {
			return Stmt{}, corerr.Wrap(corerr.ErrParse, "invalid LIMIT value")
		}
		stmt.Limit = n
		stmt.HasLimit = true
	}
	if c.peekFold("OFFSET") {
		c.next()
		n, err := strconv.Atoi(c.next())
		if err != nil {
			return Stmt{}, corerr.Wrap(corerr.ErrParse, "invalid OFFSET value")
		}
		stmt.Offset = n
	}

	return Stmt{Kind: StmtSelect, Select: stmt}, nil
}

func parseUpdate(c *cursor) (Stmt, error) {
	table := c.next()
	if err := c.expect("SET"); err != nil {
		return Stmt{}, err
	}
	assignments := map[string]string{}
	for {
		col := c.next()
		if err := c.expect("="); err != nil {
			return Stmt{}, err
		}
		assignments[col] = c.next()
		if c.peekFold(",") {
			c.next()
			continue
		}
		break
	}
	stmt := &UpdateStmt{Table: table, Assignments: assignments}
	if c.peekFold("WHERE") {
		c.next()
		p, err := parsePredicate(c)
		if err != nil {
			return Stmt{}, err
		}
		stmt.Where = p
	}
	return Stmt{Kind: StmtUpdate, Update: stmt}, nil
}

func parseDelete(c *cursor) (Stmt, error) {
	if err := c.expect("FROM"); err != nil {
		return Stmt{}, err
	}
	table := c.next()
	stmt := &DeleteStmt{Table: table}
	if c.peekFold("WHERE") {
		c.next()
		p, err := parsePredicate(c)
		if err != nil {
			return Stmt{}, err
		}
		stmt.Where = p
	}
	return Stmt{Kind: StmtDelete, Delete: stmt}, nil
}

func parseSearch(c *cursor) (Stmt, error) {
	table := c.next()
	column := c.next()
	vecTok := c.next()
	vec, err := parseVectorLiteral(vecTok)
	if err != nil {
		return Stmt{}, err
	}
	kTok := c.next()
	k, err := strconv.Atoi(kTok)
	if err != nil {
		return Stmt{}, corerr.Wrap(corerr.ErrParse, "invalid row count %q", kTok)
	}
	return Stmt{Kind: StmtSearch, Search: &SearchStmt{Table: table, Column: column, Vector: vec, K: k}}, nil
}

func parseVectorLiteral(tok string) ([]float64, error) {
	tok = strings.TrimSpace(tok)
	if len(tok) < 2 || tok[0] != '[' || tok[len(tok)-1] != ']' {
		return nil, corerr.Wrap(corerr.ErrParse, "expected a vector literal like [f, f, ...], got %q", tok)
	}
	inner := strings.TrimSpace(tok[1 : len(tok)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, corerr.Wrap(corerr.ErrParse, "invalid vector component %q", p)
		}
		vec[i] = f
	}
	return vec, nil
}
