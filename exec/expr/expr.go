// Package expr implements the scalar expression tree evaluated against a
// row during planning and execution: constants, column references, and
// binary operators.
package expr

import (
	"fmt"

	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/types"
)

// BinaryOp identifies a binary scalar operator.
type BinaryOp int

const (
	Add BinaryOp = iota
	Subtract
	Multiply
	Divide
	Modulus
	And
	Or
	Equal
	NotEqual
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual
)

func (op BinaryOp) String() string {
	switch op {
	case Add:
		return "+"
	case Subtract:
		return "-"
	case Multiply:
		return "*"
	case Divide:
		return "/"
	case Modulus:
		return "%"
	case And:
		return "AND"
	case Or:
		return "OR"
	case Equal:
		return "="
	case NotEqual:
		return "<>"
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case GreaterThanOrEqual:
		return ">="
	case LessThanOrEqual:
		return "<="
	default:
		return "?"
	}
}

// Expr is a scalar expression tree node.
type Expr interface {
	// Eval evaluates the expression against row, which may be nil for
	// expressions with no column references (e.g. constants in a VALUES
	// list).
	Eval(row types.Row) (types.Value, error)
	String() string
}

// Constant is a literal value.
type Constant struct {
	Value types.Value
}

func NewConstant(v types.Value) Constant { return Constant{Value: v} }

func (c Constant) Eval(types.Row) (types.Value, error) { return c.Value, nil }
func (c Constant) String() string                      { return c.Value.String() }

// Column references a 0-indexed position in the row being evaluated.
type Column struct {
	Index int
}

func NewColumn(index int) Column { return Column{Index: index} }

func (c Column) Eval(row types.Row) (types.Value, error) {
	if row == nil {
		return types.Value{}, verrors.New(verrors.RowNotFound, "")
	}
	if c.Index < 0 || c.Index >= len(row) {
		return types.Value{}, verrors.New(verrors.InvalidColumnIndex, "column index %d out of range", c.Index)
	}
	return row[c.Index], nil
}

func (c Column) String() string { return fmt.Sprintf("col%d", c.Index) }

// Binary applies a BinaryOp to two evaluated sub-expressions.
type Binary struct {
	Left  Expr
	Op    BinaryOp
	Right Expr
}

func NewBinary(left Expr, op BinaryOp, right Expr) Binary {
	return Binary{Left: left, Op: op, Right: right}
}

func (b Binary) Eval(row types.Row) (types.Value, error) {
	a, err := b.Left.Eval(row)
	if err != nil {
		return types.Value{}, err
	}
	c, err := b.Right.Eval(row)
	if err != nil {
		return types.Value{}, err
	}
	switch b.Op {
	case Add:
		return a.CheckedAdd(c)
	case Subtract:
		return a.CheckedSub(c)
	case Multiply:
		return a.CheckedMul(c)
	case Divide:
		return a.CheckedDiv(c)
	case Modulus:
		return a.CheckedMod(c)
	case Equal:
		return types.NewBool(a.Equal(c)), nil
	case NotEqual:
		return types.NewBool(!a.Equal(c)), nil
	case GreaterThan:
		return types.NewBool(a.Compare(c) > 0), nil
	case LessThan:
		return types.NewBool(a.Compare(c) < 0), nil
	case GreaterThanOrEqual:
		return types.NewBool(a.Compare(c) >= 0), nil
	case LessThanOrEqual:
		return types.NewBool(a.Compare(c) <= 0), nil
	case And:
		return types.NewBool(a.IsTruthy() && c.IsTruthy()), nil
	case Or:
		return types.NewBool(a.IsTruthy() || c.IsTruthy()), nil
	default:
		return types.Value{}, verrors.New(verrors.NotYetSupported, "binary operator %s", b.Op)
	}
}

func (b Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// RemapColumns returns e with every Column index passed through remap,
// rebuilding Binary nodes as needed. Used when a plan rewrite changes the
// physical column order an already-built expression was resolved against
// (e.g. the RIGHT JOIN to LEFT JOIN rewrite swaps which side comes first).
func RemapColumns(e Expr, remap func(int) int) Expr {
	switch n := e.(type) {
	case Constant:
		return n
	case Column:
		return Column{Index: remap(n.Index)}
	case Binary:
		return Binary{Left: RemapColumns(n.Left, remap), Op: n.Op, Right: RemapColumns(n.Right, remap)}
	default:
		return e
	}
}
