// Package net defines the line-delimited JSON wire protocol spoken between
// client and server: one Request per line in, one Response per line out.
package net

import (
	"encoding/json"
	"fmt"

	"github.com/clstatham/veris/exec/session"
	"github.com/clstatham/veris/types"
)

// RequestKind identifies which variant of Request a message carries.
type RequestKind string

const (
	RequestExecute RequestKind = "execute"
	RequestDebug   RequestKind = "debug"
)

// Request is one client message: either a statement (or statements) to run,
// or a request to dump the plan a statement would produce without running
// it.
type Request struct {
	Kind RequestKind `json:"kind"`
	SQL  string      `json:"sql"`
}

// NewExecuteRequest builds a Request that runs sql against the session.
func NewExecuteRequest(sql string) Request { return Request{Kind: RequestExecute, SQL: sql} }

// NewDebugRequest builds a Request that asks the server to print the plan
// it would build for sql, without executing it.
func NewDebugRequest(sql string) Request { return Request{Kind: RequestDebug, SQL: sql} }

// ResponseKind identifies which variant of Response a message carries.
type ResponseKind string

const (
	ResponseExecute ResponseKind = "execute"
	ResponseDebug   ResponseKind = "debug"
	ResponseError   ResponseKind = "error"
)

// StatementOutcome pairs a description of one statement with its Result, so
// a client running several statements in one request can report each
// separately. The server fills Statement with the statement's Go AST type
// name, not its SQL source text.
type StatementOutcome struct {
	Statement string              `json:"statement"`
	Kind      session.Kind        `json:"kind"`
	Message   string              `json:"message,omitempty"`
	TableName string              `json:"table_name,omitempty"`
	RowCount  int                 `json:"row_count,omitempty"`
	Rows      []types.Row         `json:"rows,omitempty"`
	Columns   []types.ColumnLabel `json:"columns,omitempty"`
	Tables    []*types.Table      `json:"tables,omitempty"`
}

// Response is one server message answering a Request.
type Response struct {
	Kind    ResponseKind       `json:"kind"`
	Results []StatementOutcome `json:"results,omitempty"`
	Plan    string             `json:"plan,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func (r Response) String() string {
	switch r.Kind {
	case ResponseExecute:
		return fmt.Sprintf("%d statement(s) executed", len(r.Results))
	case ResponseDebug:
		return r.Plan
	case ResponseError:
		return "Error: " + r.Error
	default:
		return "?"
	}
}

// NewExecuteResponse wraps the results of running a batch of statements.
func NewExecuteResponse(results []StatementOutcome) Response {
	return Response{Kind: ResponseExecute, Results: results}
}

// NewDebugResponse wraps a rendered plan tree.
func NewDebugResponse(plan string) Response {
	return Response{Kind: ResponseDebug, Plan: plan}
}

// NewErrorResponse wraps an error message.
func NewErrorResponse(err error) Response {
	return Response{Kind: ResponseError, Error: err.Error()}
}

// ResultOutcome converts a session.Result (plus a description of the
// statement that produced it) into the wire representation.
func ResultOutcome(statement string, result session.Result) StatementOutcome {
	return StatementOutcome{
		Statement: statement,
		Kind:      result.Kind,
		Message:   result.Message,
		TableName: result.TableName,
		RowCount:  result.RowCount,
		Rows:      result.Rows,
		Columns:   result.Columns,
		Tables:    result.Tables,
	}
}

// Encode marshals v as a single JSON line, including the trailing newline.
func Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
