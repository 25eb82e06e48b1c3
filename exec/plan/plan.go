// Package plan defines the executable plan tree the planner builds and the
// executor walks: one Node implementation per physical/logical operator.
package plan

import (
	"fmt"
	"strings"

	"github.com/clstatham/veris/exec/aggregate"
	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/exec/join"
	"github.com/clstatham/veris/types"
)

// Node is one operator in a plan tree. NumColumns and ColumnLabel describe
// the shape of the rows this node would produce, without executing it;
// the planner and the Project wildcard-expansion logic both need this
// before any row is ever read.
type Node interface {
	NumColumns() int
	ColumnLabel(index int) types.ColumnLabel
	format(sb *strings.Builder, prefix string, root, lastChild bool)
}

func String(n Node) string {
	var sb strings.Builder
	n.format(&sb, "", true, true)
	return sb.String()
}

func writePrefix(sb *strings.Builder, prefix string, root, lastChild bool) string {
	switch {
	case !lastChild:
		fmt.Fprintf(sb, "%s├── ", prefix)
		return prefix + "│   "
	case !root:
		fmt.Fprintf(sb, "%s└── ", prefix)
		return prefix + "    "
	default:
		sb.WriteString(prefix)
		return prefix
	}
}

// CreateTable plans a CREATE TABLE statement.
type CreateTable struct{ Table *types.Table }

func (*CreateTable) NumColumns() int                          { return 0 }
func (*CreateTable) ColumnLabel(int) types.ColumnLabel         { return types.ColumnLabel{} }
func (n *CreateTable) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	fmt.Fprintf(sb, "CreateTable: %s\n", n.Table.Name)
	for _, col := range n.Table.Columns {
		fmt.Fprintf(sb, "%s  └── %s %s\n", p, col.Name, col.DataType)
	}
}

// DropTable plans a DROP TABLE statement.
type DropTable struct{ Name string }

func (*DropTable) NumColumns() int                  { return 0 }
func (*DropTable) ColumnLabel(int) types.ColumnLabel { return types.ColumnLabel{} }
func (n *DropTable) format(sb *strings.Builder, prefix string, root, last bool) {
	writePrefix(sb, prefix, root, last)
	fmt.Fprintf(sb, "DropTable: %s\n", n.Name)
}

// Insert plans an INSERT statement: rows are drained from Source and cast
// to Table's schema before being written.
type Insert struct {
	Table  *types.Table
	Source Node
}

func (*Insert) NumColumns() int                  { return 0 }
func (*Insert) ColumnLabel(int) types.ColumnLabel { return types.ColumnLabel{} }
func (n *Insert) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	fmt.Fprintf(sb, "Insert: %s\n", n.Table.Name)
	n.Source.format(sb, p, false, true)
}

// Delete plans a DELETE statement: every row from Table satisfying
// Predicate is removed.
type Delete struct {
	Table     *types.Table
	Predicate expr.Expr // nil means delete every row
}

func (*Delete) NumColumns() int                  { return 0 }
func (*Delete) ColumnLabel(int) types.ColumnLabel { return types.ColumnLabel{} }
func (n *Delete) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	pred := "*"
	if n.Predicate != nil {
		pred = n.Predicate.String()
	}
	fmt.Fprintf(sb, "Delete: %s\n%s└── %s\n", n.Table.Name, p, pred)
}

// Query wraps a plan producing rows meant for the client, as opposed to one
// feeding an Insert.
type Query struct{ Source Node }

func (n *Query) NumColumns() int                        { return n.Source.NumColumns() }
func (n *Query) ColumnLabel(index int) types.ColumnLabel { return n.Source.ColumnLabel(index) }
func (n *Query) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	sb.WriteString("Query\n")
	n.Source.format(sb, p, false, true)
}

// Aggregate groups Source's rows by GroupBy and computes Aggregates per
// group.
type Aggregate struct {
	Source     Node
	GroupBy    []expr.Expr
	Aggregates []aggregate.Aggregate
}

func (n *Aggregate) NumColumns() int { return len(n.GroupBy) + len(n.Aggregates) }
func (n *Aggregate) ColumnLabel(index int) types.ColumnLabel {
	if index < len(n.GroupBy) {
		if col, ok := n.GroupBy[index].(expr.Column); ok {
			return n.Source.ColumnLabel(col.Index)
		}
	}
	return types.ColumnLabel{}
}
func (n *Aggregate) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	fmt.Fprintf(sb, "Aggregate (%d groups)\n", len(n.GroupBy))
	for _, g := range n.GroupBy {
		fmt.Fprintf(sb, "%s├── %s\n", p, g)
	}
	for _, a := range n.Aggregates {
		fmt.Fprintf(sb, "%s├── %s\n", p, a)
	}
	n.Source.format(sb, p, false, true)
}

// Filter keeps only Source rows satisfying Predicate.
type Filter struct {
	Source    Node
	Predicate expr.Expr
}

func (n *Filter) NumColumns() int                        { return n.Source.NumColumns() }
func (n *Filter) ColumnLabel(index int) types.ColumnLabel { return n.Source.ColumnLabel(index) }
func (n *Filter) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	fmt.Fprintf(sb, "Filter: %s\n", n.Predicate)
	n.Source.format(sb, p, false, true)
}

// Join combines Left and Right's rows, optionally filtered by On.
type Join struct {
	Left, Right Node
	On          expr.Expr
	Type        join.Type
}

func (n *Join) NumColumns() int { return n.Left.NumColumns() + n.Right.NumColumns() }
func (n *Join) ColumnLabel(index int) types.ColumnLabel {
	switch n.Type {
	case join.Right:
		// Unreachable by construction: the planner always rewrites a RIGHT
		// JOIN into a Left join with its sides swapped (see exec/planner's
		// JoinRight case) before building a Join node. Kept so ColumnLabel
		// stays correct if join.Right is ever constructed directly, e.g. by
		// a future planner strategy or a test.
		if index < n.Right.NumColumns() {
			return n.Right.ColumnLabel(index)
		}
		return n.Left.ColumnLabel(index - n.Right.NumColumns())
	default: // Inner, Left
		if index < n.Left.NumColumns() {
			return n.Left.ColumnLabel(index)
		}
		return n.Right.ColumnLabel(index - n.Left.NumColumns())
	}
}
func (n *Join) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	onStr := "None"
	if n.On != nil {
		onStr = n.On.String()
	}
	fmt.Fprintf(sb, "Join: %s (%s)\n", onStr, n.Type)
	n.Left.format(sb, p, false, false)
	n.Right.format(sb, p, false, true)
}

// Nothing is the zero-source placeholder a FROM-less projection builds on,
// and the accumulator a multi-table FROM clause folds joins into.
type Nothing struct{ Columns []types.ColumnLabel }

func (n *Nothing) NumColumns() int                        { return len(n.Columns) }
func (n *Nothing) ColumnLabel(index int) types.ColumnLabel { return n.Columns[index] }
func (n *Nothing) format(sb *strings.Builder, prefix string, root, last bool) {
	writePrefix(sb, prefix, root, last)
	sb.WriteString("Nothing\n")
}

// Project evaluates Columns against each Source row, labeling the results
// with Aliases.
type Project struct {
	Source  Node
	Columns []expr.Expr
	Aliases []types.ColumnLabel
}

func (n *Project) NumColumns() int { return len(n.Columns) }
func (n *Project) ColumnLabel(index int) types.ColumnLabel {
	if index < len(n.Aliases) && n.Aliases[index].Kind != types.LabelNone {
		return n.Aliases[index]
	}
	if col, ok := n.Columns[index].(expr.Column); ok {
		return n.Source.ColumnLabel(col.Index)
	}
	return types.ColumnLabel{}
}
func (n *Project) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	sb.WriteString("Project\n")
	for i, c := range n.Columns {
		fmt.Fprintf(sb, "%s├── %s: %s\n", p, n.Aliases[i], c)
	}
	n.Source.format(sb, p, false, true)
}

// Scan reads every row of Table, through Alias if set, keeping only those
// matching Filter.
type Scan struct {
	Table  *types.Table
	Filter expr.Expr
	Alias  string
}

func (n *Scan) NumColumns() int { return len(n.Table.Columns) }
func (n *Scan) ColumnLabel(index int) types.ColumnLabel {
	name := n.Table.Name
	if n.Alias != "" {
		name = n.Alias
	}
	return types.NewQualifiedLabel(name, n.Table.Columns[index].Name)
}
func (n *Scan) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	sb.WriteString("Scan\n")
	fmt.Fprintf(sb, "%s└── %s\n", p, n.Table.Name)
}

// Values is a literal row source, e.g. the VALUES list of an INSERT.
type Values struct{ Rows [][]expr.Expr }

func (n *Values) NumColumns() int {
	if len(n.Rows) == 0 {
		return 0
	}
	return len(n.Rows[0])
}
func (*Values) ColumnLabel(int) types.ColumnLabel { return types.ColumnLabel{} }
func (n *Values) format(sb *strings.Builder, prefix string, root, last bool) {
	p := writePrefix(sb, prefix, root, last)
	sb.WriteString("Values\n")
	for _, row := range n.Rows {
		parts := make([]string, len(row))
		for i, e := range row {
			parts[i] = e.String()
		}
		fmt.Fprintf(sb, "%s└── [%s]\n", p, strings.Join(parts, ", "))
	}
}
