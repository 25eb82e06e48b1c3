package net

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/clstatham/veris/exec/session"
)

func TestEncodeAppendsTrailingNewline(t *testing.T) {
	b, err := Encode(NewExecuteRequest("SELECT 1"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Fatalf("expected a trailing newline, got %q", b)
	}
	if strings.Count(string(b), "\n") != 1 {
		t.Fatalf("expected exactly one newline, got %q", b)
	}
}

func TestRequestJSONRoundTrip(t *testing.T) {
	req := NewDebugRequest("SELECT * FROM t")
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var got Request
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got != req {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestResponseJSONRoundTrip(t *testing.T) {
	resp := NewExecuteResponse([]StatementOutcome{
		ResultOutcome("CREATE TABLE t (id INTEGER PRIMARY KEY)", session.Result{Kind: session.CreateTable, TableName: "t"}),
	})
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var got Response
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != ResponseExecute || len(got.Results) != 1 || got.Results[0].TableName != "t" {
		t.Fatalf("got %+v", got)
	}
}

func TestResultOutcomeCarriesErrorMessage(t *testing.T) {
	out := ResultOutcome("SELECT * FROM missing", session.ErrorResult(errors.New("table does not exist")))
	if out.Kind != session.Error || out.Message != "table does not exist" {
		t.Fatalf("got %+v", out)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(errors.New("boom"))
	if resp.Kind != ResponseError || resp.Error != "boom" {
		t.Fatalf("got %+v", resp)
	}
	if resp.String() != "Error: boom" {
		t.Fatalf("got %q", resp.String())
	}
}

func TestResponseStringVariants(t *testing.T) {
	if got := NewDebugResponse("Scan\n").String(); got != "Scan\n" {
		t.Fatalf("got %q", got)
	}
	if got := NewExecuteResponse(make([]StatementOutcome, 2)).String(); got != "2 statement(s) executed" {
		t.Fatalf("got %q", got)
	}
}
