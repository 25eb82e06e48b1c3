// Package verrors defines the flat error taxonomy shared by every layer of
// the database, from storage up through the session. Each layer wraps or
// passes through a *Error rather than inventing its own error type, so a
// caller anywhere in the stack can test for the original Code with Is.
package verrors

import "fmt"

// Code identifies the kind of failure. The zero value is never used so a
// missing Code assignment is easy to spot in review.
type Code int

const (
	_ Code = iota

	NotInTransaction
	AlreadyInTransaction
	TransactionReadOnly
	OutOfOrder
	TableAlreadyExists
	TableDoesNotExist
	DuplicateTable
	DuplicateColumn
	DuplicateAggregate
	AggregateNotFound
	RowNotFound
	ColumnNotFound
	InvalidColumnIndex
	InvalidColumnLabel
	InvalidDataType
	InvalidDate
	InvalidValue
	InvalidPrimaryKey
	InvalidRow
	InvalidRowState
	InvalidFilterResult
	InvalidCast
	InvalidSQL
	InvalidEngineState
	InvalidPlan
	InvalidUTF8
	IntegerOverflow
	NotYetSupported
	PoisonedMutex
	Serialization
	IO
	ReferentialIntegrity
)

var names = map[Code]string{
	NotInTransaction:     "not in transaction",
	AlreadyInTransaction: "already in transaction",
	TransactionReadOnly:  "transaction is read-only",
	OutOfOrder:           "write-write conflict",
	TableAlreadyExists:   "table already exists",
	TableDoesNotExist:    "table does not exist",
	DuplicateTable:       "duplicate table",
	DuplicateColumn:      "duplicate column",
	DuplicateAggregate:   "duplicate aggregate",
	AggregateNotFound:    "aggregate not found",
	RowNotFound:          "row not found",
	ColumnNotFound:       "column not found",
	InvalidColumnIndex:   "invalid column index",
	InvalidColumnLabel:   "invalid column label",
	InvalidDataType:      "invalid data type",
	InvalidDate:          "invalid date",
	InvalidValue:         "invalid value",
	InvalidPrimaryKey:    "invalid primary key",
	InvalidRow:           "invalid row",
	InvalidRowState:      "invalid row state",
	InvalidFilterResult:  "invalid filter result",
	InvalidCast:          "invalid cast",
	InvalidSQL:           "invalid sql",
	InvalidEngineState:   "invalid engine state",
	InvalidPlan:          "invalid plan",
	InvalidUTF8:          "invalid utf8",
	IntegerOverflow:      "integer overflow",
	NotYetSupported:      "not yet supported",
	PoisonedMutex:        "poisoned mutex",
	Serialization:        "serialization error",
	IO:                   "io error",
	ReferentialIntegrity: "referential integrity violation",
}

// Error is the error type returned by every layer of the engine.
type Error struct {
	Code    Code
	Message string

	// Payload fields, populated only by the codes that carry structured
	// detail (InvalidCast, ReferentialIntegrity).
	Value  string
	To     string
	Table  string
	Column string
	Source string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return names[e.Code]
}

// New constructs an *Error with the given code. If format is non-empty it is
// used (with args) as the message; otherwise the code's default message is
// used.
func New(code Code, format string, args ...interface{}) *Error {
	msg := names[code]
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Code: code, Message: msg}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

func InvalidCastErr(value, to string) *Error {
	return &Error{
		Code:    InvalidCast,
		Message: fmt.Sprintf("cannot cast %s to %s", value, to),
		Value:   value,
		To:      to,
	}
}

func ReferentialIntegrityErr(table, column, source string) *Error {
	return &Error{
		Code:    ReferentialIntegrity,
		Message: fmt.Sprintf("row is referenced by %s.%s=%s", table, column, source),
		Table:   table,
		Column:  column,
		Source:  source,
	}
}
