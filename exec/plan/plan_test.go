package plan

import (
	"strings"
	"testing"

	"github.com/clstatham/veris/exec/aggregate"
	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/exec/join"
	"github.com/clstatham/veris/types"
)

func usersTable() *types.Table {
	return &types.Table{
		Name:            "users",
		PrimaryKeyIndex: 0,
		Columns: []types.Column{
			{Name: "id", DataType: types.NewInteger()},
			{Name: "name", DataType: types.NewString(nil)},
		},
	}
}

func TestScanColumnLabels(t *testing.T) {
	n := &Scan{Table: usersTable()}
	if n.NumColumns() != 2 {
		t.Fatalf("got %d columns", n.NumColumns())
	}
	label := n.ColumnLabel(0)
	if table, ok := label.TableName(); !ok || table != "users" {
		t.Fatalf("got %+v", label)
	}

	aliased := &Scan{Table: usersTable(), Alias: "u"}
	label = aliased.ColumnLabel(0)
	if table, _ := label.TableName(); table != "u" {
		t.Fatalf("expected alias to replace table name, got %+v", label)
	}
}

func TestProjectColumnLabelFallsBackToSource(t *testing.T) {
	scan := &Scan{Table: usersTable()}
	project := &Project{
		Source:  scan,
		Columns: []expr.Expr{expr.NewColumn(1)},
		Aliases: []types.ColumnLabel{{}},
	}
	label := project.ColumnLabel(0)
	if col, ok := label.ColumnName(); !ok || col != "name" {
		t.Fatalf("expected fallback to source column label, got %+v", label)
	}
}

func TestProjectColumnLabelPrefersExplicitAlias(t *testing.T) {
	scan := &Scan{Table: usersTable()}
	project := &Project{
		Source:  scan,
		Columns: []expr.Expr{expr.NewColumn(1)},
		Aliases: []types.ColumnLabel{types.NewUnqualifiedLabel("username")},
	}
	label := project.ColumnLabel(0)
	if col, ok := label.ColumnName(); !ok || col != "username" {
		t.Fatalf("got %+v", label)
	}
}

func TestJoinColumnLabelsByType(t *testing.T) {
	left := &Scan{Table: usersTable()}
	right := &Scan{Table: usersTable(), Alias: "p"}

	inner := &Join{Left: left, Right: right, Type: join.Inner}
	if inner.NumColumns() != 4 {
		t.Fatalf("got %d columns", inner.NumColumns())
	}
	if table, _ := inner.ColumnLabel(2).TableName(); table != "p" {
		t.Fatalf("expected right side at index 2, got %+v", inner.ColumnLabel(2))
	}

	rightJoin := &Join{Left: left, Right: right, Type: join.Right}
	if table, _ := rightJoin.ColumnLabel(0).TableName(); table != "p" {
		t.Fatalf("right join should put Right's columns first, got %+v", rightJoin.ColumnLabel(0))
	}
}

func TestAggregateColumnLabelForGroupByColumn(t *testing.T) {
	scan := &Scan{Table: usersTable()}
	agg := &Aggregate{
		Source:     scan,
		GroupBy:    []expr.Expr{expr.NewColumn(1)},
		Aggregates: []aggregate.Aggregate{{Func: aggregate.Count, Expr: expr.NewColumn(0)}},
	}
	if agg.NumColumns() != 2 {
		t.Fatalf("got %d columns", agg.NumColumns())
	}
	if col, ok := agg.ColumnLabel(0).ColumnName(); !ok || col != "name" {
		t.Fatalf("got %+v", agg.ColumnLabel(0))
	}
	if agg.ColumnLabel(1).Kind != types.LabelNone {
		t.Fatalf("expected no label for an aggregate column, got %+v", agg.ColumnLabel(1))
	}
}

func TestStringRendersTreeShape(t *testing.T) {
	scan := &Scan{Table: usersTable()}
	filter := &Filter{Source: scan, Predicate: expr.NewBinary(expr.NewColumn(0), expr.Equal, expr.NewConstant(types.NewInt(1)))}
	query := &Query{Source: filter}

	out := String(query)
	if !strings.Contains(out, "Query") || !strings.Contains(out, "Filter") || !strings.Contains(out, "Scan") {
		t.Fatalf("expected tree to mention every node, got:\n%s", out)
	}
	if !strings.Contains(out, "└──") {
		t.Fatalf("expected ASCII tree art, got:\n%s", out)
	}
}

func TestValuesNumColumns(t *testing.T) {
	values := &Values{Rows: [][]expr.Expr{
		{expr.NewConstant(types.NewInt(1)), expr.NewConstant(types.NewString_("a"))},
	}}
	if values.NumColumns() != 2 {
		t.Fatalf("got %d columns", values.NumColumns())
	}

	empty := &Values{}
	if empty.NumColumns() != 0 {
		t.Fatalf("expected 0 columns for an empty Values node")
	}
}
