package join

import (
	"testing"

	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/types"
)

func rowIter(rows ...types.Row) *types.SliceRowIter {
	return types.NewSliceRowIter(rows)
}

func TestNestedLoopInnerFiltersByPredicate(t *testing.T) {
	left := rowIter(types.Row{types.NewInt(1)}, types.Row{types.NewInt(2)})
	right := rowIter(types.Row{types.NewInt(1)}, types.Row{types.NewInt(3)})
	pred := expr.NewBinary(expr.NewColumn(0), expr.Equal, expr.NewColumn(1))

	j, err := NewNestedLoop(left, right, 1, pred, false)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := types.CollectRows(j)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0][0].Int != 1 || rows[0][1].Int != 1 {
		t.Fatalf("got %+v", rows)
	}
}

func TestNestedLoopOuterPadsUnmatchedLeftRows(t *testing.T) {
	left := rowIter(types.Row{types.NewInt(1)}, types.Row{types.NewInt(2)})
	right := rowIter(types.Row{types.NewInt(1)})
	pred := expr.NewBinary(expr.NewColumn(0), expr.Equal, expr.NewColumn(1))

	j, err := NewNestedLoop(left, right, 1, pred, true)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := types.CollectRows(j)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (1 match + 1 padded), got %+v", rows)
	}
	if rows[1][0].Int != 2 || rows[1][1].Kind != types.Null {
		t.Fatalf("expected padded right side for unmatched left row, got %+v", rows[1])
	}
}

func TestNestedLoopNoPredicateIsCrossJoin(t *testing.T) {
	left := rowIter(types.Row{types.NewInt(1)}, types.Row{types.NewInt(2)})
	right := rowIter(types.Row{types.NewInt(10)}, types.Row{types.NewInt(20)})

	j, err := NewNestedLoop(left, right, 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := types.CollectRows(j)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows from a 2x2 cross join, got %d", len(rows))
	}
}

func TestHashJoinMatchesByKey(t *testing.T) {
	left := rowIter(types.Row{types.NewInt(1), types.NewString_("a")}, types.Row{types.NewInt(2), types.NewString_("b")})
	right := rowIter(types.Row{types.NewInt(1), types.NewString_("x")}, types.Row{types.NewInt(1), types.NewString_("y")})

	j, err := NewHash(left, 0, right, 0, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := types.CollectRows(j)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 matches for left key 1 (x and y), got %+v", rows)
	}
}

func TestHashJoinNullKeyNeverMatches(t *testing.T) {
	left := rowIter(types.Row{types.NewNull()})
	right := rowIter(types.Row{types.NewNull()})

	j, err := NewHash(left, 0, right, 0, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := types.CollectRows(j)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected NULL = NULL to never match in a hash join, got %+v", rows)
	}
}

func TestHashJoinOuterPadsUnmatchedLeftRows(t *testing.T) {
	left := rowIter(types.Row{types.NewInt(1)}, types.Row{types.NewInt(2)})
	right := rowIter(types.Row{types.NewInt(1)})

	j, err := NewHash(left, 0, right, 0, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := types.CollectRows(j)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (1 match + 1 padded), got %+v", rows)
	}
	if rows[1][1].Kind != types.Null {
		t.Fatalf("expected padded right side for unmatched left row, got %+v", rows[1])
	}
}

func TestTypeString(t *testing.T) {
	cases := map[Type]string{Inner: "Inner", Left: "Left", Right: "Right"}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
