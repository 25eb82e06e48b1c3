package sql

import "github.com/clstatham/veris/types"

// Statement is any top-level SQL statement this front end understands.
type Statement interface{ isStatement() }

type CreateTableStatement struct {
	Name            string
	Columns         []ColumnDef
	PrimaryKeyIndex int
}

type ColumnDef struct {
	Name       string
	DataType   types.DataType
	Nullable   bool
	References *ForeignKeyDef
}

type ForeignKeyDef struct {
	Table  string
	Column string
}

type DropTableStatement struct {
	Name string
}

type InsertStatement struct {
	Table  string
	Values [][]Expr
}

type DeleteStatement struct {
	Table string
	Where Expr // nil means unconditional delete
}

type SelectStatement struct {
	Projection []SelectItem
	From       []TableRef
	Where      Expr
	GroupBy    []Expr
}

type SelectItem struct {
	Expr     Expr // nil for a bare "*"
	Alias    string
	Wildcard bool
}

// TableRef is one FROM-clause item: a base table plus the joins chained
// directly onto it.
type TableRef struct {
	Table string
	Alias string
	Joins []Join
}

type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
)

type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	On    Expr // nil for a plain cross/comma join
}

type BeginStatement struct{ ReadOnly bool }
type CommitStatement struct{}
type RollbackStatement struct{}
type ShowTablesStatement struct{}

func (*CreateTableStatement) isStatement() {}
func (*DropTableStatement) isStatement()   {}
func (*InsertStatement) isStatement()      {}
func (*DeleteStatement) isStatement()      {}
func (*SelectStatement) isStatement()      {}
func (*BeginStatement) isStatement()       {}
func (*CommitStatement) isStatement()      {}
func (*RollbackStatement) isStatement()    {}
func (*ShowTablesStatement) isStatement()  {}

// Expr is a node of the scalar expression AST, parsed but not yet resolved
// against any Scope.
type Expr interface{ isExpr() }

// Literal is a parsed constant value.
type Literal struct{ Value types.Value }

// Name is a possibly table-qualified column reference, e.g. "age" or
// "users.age".
type Name struct{ Parts []string }

// BinaryExpr applies an infix operator to two sub-expressions.
type BinaryExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

// Call is a function call, e.g. COUNT(x) or COUNT(*).
type Call struct {
	Name     string
	Args     []Expr
	Wildcard bool // true for COUNT(*)
}

func (Literal) isExpr()    {}
func (Name) isExpr()       {}
func (BinaryExpr) isExpr() {}
func (Call) isExpr()       {}
