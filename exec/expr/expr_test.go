package expr

import (
	"testing"

	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/types"
)

func TestConstantEval(t *testing.T) {
	c := NewConstant(types.NewInt(42))
	v, err := c.Eval(nil)
	if err != nil || v.Int != 42 {
		t.Fatalf("got %v, %v want 42", v, err)
	}
}

func TestColumnEval(t *testing.T) {
	row := types.Row{types.NewInt(1), types.NewString_("a")}
	v, err := NewColumn(1).Eval(row)
	if err != nil || v.Str != "a" {
		t.Fatalf("got %v, %v want a", v, err)
	}

	_, err = NewColumn(5).Eval(row)
	if !verrors.Is(err, verrors.InvalidColumnIndex) {
		t.Fatalf("expected InvalidColumnIndex, got %v", err)
	}

	_, err = NewColumn(0).Eval(nil)
	if !verrors.Is(err, verrors.RowNotFound) {
		t.Fatalf("expected RowNotFound, got %v", err)
	}
}

func TestBinaryArithmetic(t *testing.T) {
	e := NewBinary(NewConstant(types.NewInt(4)), Add, NewConstant(types.NewInt(5)))
	v, err := e.Eval(nil)
	if err != nil || v.Int != 9 {
		t.Fatalf("got %v, %v want 9", v, err)
	}
}

func TestBinaryModulus(t *testing.T) {
	e := NewBinary(NewConstant(types.NewInt(10)), Modulus, NewConstant(types.NewInt(3)))
	v, err := e.Eval(nil)
	if err != nil || v.Int != 1 {
		t.Fatalf("got %v, %v want 1", v, err)
	}

	byZero := NewBinary(NewConstant(types.NewInt(10)), Modulus, NewConstant(types.NewInt(0)))
	_, err = byZero.Eval(nil)
	if !verrors.Is(err, verrors.IntegerOverflow) {
		t.Fatalf("expected IntegerOverflow, got %v", err)
	}
}

func TestBinaryComparisonAndLogic(t *testing.T) {
	cmp := NewBinary(NewConstant(types.NewInt(3)), LessThan, NewConstant(types.NewInt(5)))
	v, err := cmp.Eval(nil)
	if err != nil || !v.IsTruthy() {
		t.Fatalf("expected 3 < 5 to be true, got %v, %v", v, err)
	}

	logic := NewBinary(NewConstant(types.NewBool(true)), And, NewConstant(types.NewBool(false)))
	v, err = logic.Eval(nil)
	if err != nil || v.IsTruthy() {
		t.Fatalf("expected true AND false to be false, got %v, %v", v, err)
	}
}

func TestBinaryString(t *testing.T) {
	e := NewBinary(NewColumn(0), Equal, NewConstant(types.NewInt(1)))
	if e.String() != "(col0 = 1)" {
		t.Fatalf("got %q", e.String())
	}
}
