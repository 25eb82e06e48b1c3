package sql

import (
	"strconv"
	"strings"
	"time"

	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/types"
)

// Parser turns a token stream into a Statement tree.
type Parser struct {
	lex  *lexer
	cur  Token
	peek Token
}

// NewParser returns a Parser ready to read input.
func NewParser(input string) *Parser {
	p := &Parser{lex: newLexer(input)}
	p.cur = p.lex.next()
	p.peek = p.lex.next()
	return p
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.next()
}

func (p *Parser) atKeyword(word string) bool {
	return p.cur.Kind == Keyword && strings.EqualFold(p.cur.Text, word)
}

func (p *Parser) expectKeyword(word string) error {
	if !p.atKeyword(word) {
		return verrors.New(verrors.InvalidSQL, "expected %q, got %s at %d", word, p.cur, p.cur.Pos)
	}
	p.advance()
	return nil
}

func (p *Parser) expect(kind Kind) (Token, error) {
	if p.cur.Kind != kind {
		return Token{}, verrors.New(verrors.InvalidSQL, "expected %s, got %s at %d", kind, p.cur, p.cur.Pos)
	}
	t := p.cur
	p.advance()
	return t, nil
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur.Kind == Error {
		return "", tokenErr(p.cur)
	}
	if p.cur.Kind != Ident && p.cur.Kind != Keyword {
		return "", verrors.New(verrors.InvalidSQL, "expected identifier, got %s at %d", p.cur, p.cur.Pos)
	}
	text := p.cur.Text
	p.advance()
	return text, nil
}

// ParseStatements parses one or more semicolon-separated statements.
func ParseStatements(input string) ([]Statement, error) {
	p := NewParser(input)
	var stmts []Statement
	for p.cur.Kind != EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		for p.cur.Kind == Semicolon {
			p.advance()
		}
	}
	return stmts, nil
}

// Parse parses exactly one statement, erroring if trailing input remains.
func Parse(input string) (Statement, error) {
	p := NewParser(input)
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == Semicolon {
		p.advance()
	}
	if p.cur.Kind != EOF {
		return nil, verrors.New(verrors.InvalidSQL, "unexpected trailing input at %d", p.cur.Pos)
	}
	return stmt, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	if p.cur.Kind == Error {
		return nil, tokenErr(p.cur)
	}
	switch {
	case p.atKeyword("create"):
		return p.parseCreateTable()
	case p.atKeyword("drop"):
		return p.parseDropTable()
	case p.atKeyword("insert"):
		return p.parseInsert()
	case p.atKeyword("delete"):
		return p.parseDelete()
	case p.atKeyword("select"):
		return p.parseSelect()
	case p.atKeyword("begin"):
		p.advance()
		if p.atKeyword("transaction") {
			p.advance()
		}
		return &BeginStatement{}, nil
	case p.atKeyword("commit"):
		p.advance()
		return &CommitStatement{}, nil
	case p.atKeyword("rollback"):
		p.advance()
		return &RollbackStatement{}, nil
	case p.atKeyword("show"):
		p.advance()
		if err := p.expectKeyword("tables"); err != nil {
			return nil, err
		}
		return &ShowTablesStatement{}, nil
	default:
		return nil, verrors.New(verrors.InvalidSQL, "unexpected token %s at %d", p.cur, p.cur.Pos)
	}
}

func (p *Parser) parseDataType() (types.DataType, error) {
	switch {
	case p.atKeyword("int"), p.atKeyword("integer"):
		p.advance()
		return types.NewInteger(), nil
	case p.atKeyword("float"), p.atKeyword("double"):
		p.advance()
		return types.NewFloat(), nil
	case p.atKeyword("boolean"), p.atKeyword("bool"):
		p.advance()
		return types.NewBoolean(), nil
	case p.atKeyword("date"):
		p.advance()
		return types.NewDate(), nil
	case p.atKeyword("varchar"), p.atKeyword("text"):
		p.advance()
		var length *uint64
		if p.cur.Kind == LParen {
			p.advance()
			n, err := p.expect(Number)
			if err != nil {
				return types.DataType{}, err
			}
			v, err := strconv.ParseUint(n.Text, 10, 64)
			if err != nil {
				return types.DataType{}, verrors.New(verrors.InvalidSQL, "invalid length %q", n.Text)
			}
			length = &v
			if _, err := p.expect(RParen); err != nil {
				return types.DataType{}, err
			}
		}
		return types.NewString(length), nil
	case p.atKeyword("decimal"), p.atKeyword("numeric"):
		p.advance()
		var precision, scale *uint64
		if p.cur.Kind == LParen {
			p.advance()
			n, err := p.expect(Number)
			if err != nil {
				return types.DataType{}, err
			}
			v, _ := strconv.ParseUint(n.Text, 10, 64)
			precision = &v
			if p.cur.Kind == Comma {
				p.advance()
				n2, err := p.expect(Number)
				if err != nil {
					return types.DataType{}, err
				}
				v2, _ := strconv.ParseUint(n2.Text, 10, 64)
				scale = &v2
			}
			if _, err := p.expect(RParen); err != nil {
				return types.DataType{}, err
			}
		}
		return types.NewDecimal(precision, scale), nil
	default:
		return types.DataType{}, verrors.New(verrors.InvalidDataType, "at %d: %s", p.cur.Pos, p.cur.Text)
	}
}

func (p *Parser) parseCreateTable() (Statement, error) {
	p.advance() // CREATE
	if err := p.expectKeyword("table"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}

	stmt := &CreateTableStatement{Name: name}
	for {
		col, isPrimaryKeyCol, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		if isPrimaryKeyCol {
			stmt.PrimaryKeyIndex = len(stmt.Columns)
		}
		stmt.Columns = append(stmt.Columns, col)
		if p.cur.Kind == Comma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, bool, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, false, err
	}
	dataType, err := p.parseDataType()
	if err != nil {
		return ColumnDef{}, false, err
	}
	col := ColumnDef{Name: name, DataType: dataType, Nullable: true}
	isPrimaryKey := false
	for {
		switch {
		case p.atKeyword("primary"):
			p.advance()
			if err := p.expectKeyword("key"); err != nil {
				return ColumnDef{}, false, err
			}
			isPrimaryKey = true
			col.Nullable = false
		case p.atKeyword("not"):
			p.advance()
			if err := p.expectKeyword("null"); err != nil {
				return ColumnDef{}, false, err
			}
			col.Nullable = false
		case p.atKeyword("null"):
			p.advance()
			col.Nullable = true
		case p.atKeyword("references"):
			p.advance()
			table, err := p.expectIdent()
			if err != nil {
				return ColumnDef{}, false, err
			}
			column := "id"
			if p.cur.Kind == LParen {
				p.advance()
				column, err = p.expectIdent()
				if err != nil {
					return ColumnDef{}, false, err
				}
				if _, err := p.expect(RParen); err != nil {
					return ColumnDef{}, false, err
				}
			}
			col.References = &ForeignKeyDef{Table: table, Column: column}
		default:
			return col, isPrimaryKey, nil
		}
	}
}

func (p *Parser) parseDropTable() (Statement, error) {
	p.advance() // DROP
	if err := p.expectKeyword("table"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &DropTableStatement{Name: name}, nil
}

func (p *Parser) parseInsert() (Statement, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("into"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind == LParen {
		// Explicit column list: not yet supported, column order must match
		// the table's declared order.
		return nil, verrors.New(verrors.NotYetSupported, "INSERT with explicit column list")
	}
	if err := p.expectKeyword("values"); err != nil {
		return nil, err
	}
	stmt := &InsertStatement{Table: table}
	for {
		if _, err := p.expect(LParen); err != nil {
			return nil, err
		}
		var row []Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.cur.Kind == Comma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, row)
		if p.cur.Kind == Comma {
			p.advance()
			continue
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStatement{Table: table}
	if p.atKeyword("where") {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (Statement, error) {
	p.advance() // SELECT
	stmt := &SelectStatement{}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Projection = append(stmt.Projection, item)
		if p.cur.Kind == Comma {
			p.advance()
			continue
		}
		break
	}

	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	for {
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = append(stmt.From, ref)
		if p.cur.Kind == Comma {
			p.advance()
			continue
		}
		break
	}

	if p.atKeyword("where") {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.atKeyword("group") {
		p.advance()
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if p.cur.Kind == Comma {
				p.advance()
				continue
			}
			break
		}
	}

	return stmt, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.cur.Kind == Star {
		p.advance()
		return SelectItem{Wildcard: true}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	if p.atKeyword("as") {
		p.advance()
		alias, err := p.expectIdent()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias
	} else if p.cur.Kind == Ident {
		alias, err := p.expectIdent()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias
	}
	return item, nil
}

func (p *Parser) parseTableRef() (TableRef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return TableRef{}, err
	}
	ref := TableRef{Table: name}
	if p.cur.Kind == Ident {
		alias, err := p.expectIdent()
		if err != nil {
			return TableRef{}, err
		}
		ref.Alias = alias
	} else if p.atKeyword("as") {
		p.advance()
		alias, err := p.expectIdent()
		if err != nil {
			return TableRef{}, err
		}
		ref.Alias = alias
	}

	for p.atKeyword("join") || p.atKeyword("inner") || p.atKeyword("left") || p.atKeyword("right") {
		kind := JoinInner
		switch {
		case p.atKeyword("inner"):
			p.advance()
		case p.atKeyword("left"):
			p.advance()
			kind = JoinLeft
			if p.atKeyword("outer") {
				p.advance()
			}
		case p.atKeyword("right"):
			p.advance()
			kind = JoinRight
			if p.atKeyword("outer") {
				p.advance()
			}
		}
		if err := p.expectKeyword("join"); err != nil {
			return TableRef{}, err
		}
		joinTable, err := p.expectIdent()
		if err != nil {
			return TableRef{}, err
		}
		join := Join{Kind: kind, Table: joinTable}
		if p.cur.Kind == Ident {
			alias, err := p.expectIdent()
			if err != nil {
				return TableRef{}, err
			}
			join.Alias = alias
		}
		if p.atKeyword("on") {
			p.advance()
			on, err := p.parseExpr()
			if err != nil {
				return TableRef{}, err
			}
			join.On = on
		}
		ref.Joins = append(ref.Joins, join)
	}

	return ref, nil
}

// Expression parsing uses standard precedence climbing:
// OR < AND < comparison < additive < multiplicative < unary < primary.

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Left: left, Op: "OR", Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Left: left, Op: "AND", Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var op string
	switch p.cur.Kind {
	case Eq:
		op = "="
	case NotEq:
		op = "<>"
	case Lt:
		op = "<"
	case LtEq:
		op = "<="
	case Gt:
		op = ">"
	case GtEq:
		op = ">="
	default:
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return BinaryExpr{Left: left, Op: op, Right: right}, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == Plus || p.cur.Kind == Minus {
		op := "+"
		if p.cur.Kind == Minus {
			op = "-"
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == Star || p.cur.Kind == Slash || p.cur.Kind == Percent {
		op := map[Kind]string{Star: "*", Slash: "/", Percent: "%"}[p.cur.Kind]
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.Kind == Minus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Left: Literal{Value: types.NewInt(0)}, Op: "-", Right: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.cur.Kind {
	case Error:
		return nil, tokenErr(p.cur)
	case Number:
		text := p.cur.Text
		p.advance()
		if strings.Contains(text, ".") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, verrors.New(verrors.InvalidSQL, "invalid number %q", text)
			}
			return Literal{Value: types.NewFloatVal(f)}, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, verrors.New(verrors.InvalidSQL, "invalid number %q", text)
		}
		return Literal{Value: types.NewInt(n)}, nil
	case String:
		text := p.cur.Text
		p.advance()
		return Literal{Value: types.NewString_(text)}, nil
	case LParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return e, nil
	case Keyword:
		switch strings.ToLower(p.cur.Text) {
		case "true":
			p.advance()
			return Literal{Value: types.NewBool(true)}, nil
		case "false":
			p.advance()
			return Literal{Value: types.NewBool(false)}, nil
		case "null":
			p.advance()
			return Literal{Value: types.NewNull()}, nil
		case "date":
			p.advance()
			lit, err := p.expect(String)
			if err != nil {
				return nil, err
			}
			d, err := time.Parse("2006-01-02", lit.Text)
			if err != nil {
				return nil, verrors.New(verrors.InvalidDate, "%s", lit.Text)
			}
			return Literal{Value: types.NewDateVal(d)}, nil
		default:
			return nil, verrors.New(verrors.InvalidSQL, "unexpected keyword %q at %d", p.cur.Text, p.cur.Pos)
		}
	case Ident:
		return p.parseNameOrCall()
	default:
		return nil, verrors.New(verrors.InvalidSQL, "unexpected token %s at %d", p.cur, p.cur.Pos)
	}
}

func (p *Parser) parseNameOrCall() (Expr, error) {
	first, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	if p.cur.Kind == LParen {
		p.advance()
		call := Call{Name: first}
		if p.cur.Kind == Star {
			p.advance()
			call.Wildcard = true
		} else if p.cur.Kind != RParen {
			for {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if p.cur.Kind == Comma {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return call, nil
	}

	parts := []string{first}
	for p.cur.Kind == Dot {
		p.advance()
		next, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		parts = append(parts, next)
	}
	return Name{Parts: parts}, nil
}
