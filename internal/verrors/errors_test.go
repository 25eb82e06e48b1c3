package verrors

import "testing"

func TestIs(t *testing.T) {
	err := New(OutOfOrder, "")
	if !Is(err, OutOfOrder) {
		t.Fatalf("expected Is(err, OutOfOrder) to be true")
	}
	if Is(err, TableDoesNotExist) {
		t.Fatalf("expected Is(err, TableDoesNotExist) to be false")
	}
	if Is(fmtErr{}, OutOfOrder) {
		t.Fatalf("non-*Error values must never match Is")
	}
}

func TestInvalidCastErr(t *testing.T) {
	err := InvalidCastErr("'abc'", "Integer")
	if err.Code != InvalidCast {
		t.Fatalf("expected code InvalidCast, got %v", err.Code)
	}
	if err.Value != "'abc'" || err.To != "Integer" {
		t.Fatalf("payload fields not set: %+v", err)
	}
}

func TestReferentialIntegrityErr(t *testing.T) {
	err := ReferentialIntegrityErr("child", "id", "10")
	if err.Table != "child" || err.Column != "id" || err.Source != "10" {
		t.Fatalf("payload fields not set: %+v", err)
	}
}

func TestErrorMessageFallback(t *testing.T) {
	err := New(NotInTransaction, "")
	if err.Error() != "not in transaction" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

type fmtErr struct{}

func (fmtErr) Error() string { return "not a *Error" }
