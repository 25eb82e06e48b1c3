package aggregate

import (
	"testing"

	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/types"
)

func mustFinish(t *testing.T, a *Aggregator) []types.Row {
	t.Helper()
	rows, err := a.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestAggregatorGroupsByKey(t *testing.T) {
	a := New([]expr.Expr{expr.NewColumn(0)}, []Aggregate{{Func: Count, Expr: expr.NewColumn(1)}})
	rows := []types.Row{
		{types.NewString_("a"), types.NewInt(1)},
		{types.NewString_("b"), types.NewInt(2)},
		{types.NewString_("a"), types.NewInt(3)},
	}
	for _, r := range rows {
		if err := a.AddRow(r); err != nil {
			t.Fatal(err)
		}
	}
	out := mustFinish(t, a)
	if len(out) != 2 {
		t.Fatalf("expected 2 groups, got %d: %v", len(out), out)
	}
	// groups are returned in ascending key order: "a" before "b".
	if out[0][0].Str != "a" || out[0][1].Int != 2 {
		t.Fatalf("got %+v", out[0])
	}
	if out[1][0].Str != "b" || out[1][1].Int != 1 {
		t.Fatalf("got %+v", out[1])
	}
}

func TestAggregatorEmptyGroupByIsOneGroup(t *testing.T) {
	a := New(nil, []Aggregate{{Func: Sum, Expr: expr.NewColumn(0)}})
	for _, v := range []int64{1, 2, 3} {
		if err := a.AddRow(types.Row{types.NewInt(v)}); err != nil {
			t.Fatal(err)
		}
	}
	out := mustFinish(t, a)
	if len(out) != 1 || out[0][0].Int != 6 {
		t.Fatalf("got %+v", out)
	}
}

func TestAggregatorSkipsNulls(t *testing.T) {
	a := New(nil, []Aggregate{
		{Func: Count, Expr: expr.NewColumn(0)},
		{Func: Sum, Expr: expr.NewColumn(0)},
	})
	for _, v := range []types.Value{types.NewInt(1), types.NewNull(), types.NewInt(3)} {
		if err := a.AddRow(types.Row{v}); err != nil {
			t.Fatal(err)
		}
	}
	out := mustFinish(t, a)
	if out[0][0].Int != 2 {
		t.Fatalf("expected COUNT to skip NULL, got %+v", out[0][0])
	}
	if out[0][1].Int != 4 {
		t.Fatalf("expected SUM to skip NULL, got %+v", out[0][1])
	}
}

func TestAggregatorNoRowsProducesNoGroups(t *testing.T) {
	a := New(nil, []Aggregate{{Func: Average, Expr: expr.NewColumn(0)}})
	// No rows added at all: no group exists, so Finish returns nothing.
	out := mustFinish(t, a)
	if len(out) != 0 {
		t.Fatalf("expected no groups when no rows were ever added, got %+v", out)
	}
}

func TestAggregatorAverage(t *testing.T) {
	a := New(nil, []Aggregate{{Func: Average, Expr: expr.NewColumn(0)}})
	for _, v := range []int64{2, 4, 6} {
		if err := a.AddRow(types.Row{types.NewInt(v)}); err != nil {
			t.Fatal(err)
		}
	}
	out := mustFinish(t, a)
	if out[0][0].Int != 4 {
		t.Fatalf("expected average 4, got %+v", out[0][0])
	}
}

func TestAggregatorMaxMin(t *testing.T) {
	a := New(nil, []Aggregate{
		{Func: Max, Expr: expr.NewColumn(0)},
		{Func: Min, Expr: expr.NewColumn(0)},
	})
	for _, v := range []int64{5, 1, 9, 3} {
		if err := a.AddRow(types.Row{types.NewInt(v)}); err != nil {
			t.Fatal(err)
		}
	}
	out := mustFinish(t, a)
	if out[0][0].Int != 9 || out[0][1].Int != 1 {
		t.Fatalf("got %+v", out[0])
	}
}

func TestAggregateString(t *testing.T) {
	agg := Aggregate{Func: Count, Expr: expr.NewColumn(0)}
	if got := agg.String(); got != "COUNT(col0)" {
		t.Fatalf("got %q", got)
	}
}
