// Package session ties the catalog engine, planner, and executor together
// into the unit of interaction a client actually drives: execute a
// statement, optionally inside an explicit transaction.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/clstatham/veris/engine"
	"github.com/clstatham/veris/exec"
	"github.com/clstatham/veris/exec/planner"
	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/sql"
	"github.com/clstatham/veris/types"
)

// Kind identifies which statement a Result describes.
type Kind int

const (
	Null Kind = iota
	Error
	Begin
	Commit
	Rollback
	CreateTable
	DropTable
	ShowTables
	Delete
	Insert
	Query
)

var kindNames = map[Kind]string{
	Null:        "null",
	Error:       "error",
	Begin:       "begin",
	Commit:      "commit",
	Rollback:    "rollback",
	CreateTable: "create_table",
	DropTable:   "drop_table",
	ShowTables:  "show_tables",
	Delete:      "delete",
	Insert:      "insert",
	Query:       "query",
}

func (k Kind) name() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// MarshalJSON renders a Kind as its wire name, so a client never has to
// hardcode the numeric order of this enum.
func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.name()) }

// UnmarshalJSON parses a Kind from its wire name.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for kind, n := range kindNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown statement result kind %q", name)
}

// Result is the outcome of running one statement, in a form the wire layer
// serializes directly.
type Result struct {
	Kind      Kind
	Message   string
	TableName string
	Tables    []*types.Table
	RowCount  int
	Rows      []types.Row
	Columns   []types.ColumnLabel
}

// ErrorResult builds the Result a batch reports for a statement that failed,
// carrying the error message the way StatementResult::Error(msg) does on the
// wire.
func ErrorResult(err error) Result {
	return Result{Kind: Error, Message: err.Error()}
}

func (r Result) String() string {
	switch r.Kind {
	case Null:
		return "NULL"
	case Error:
		return "Error: " + r.Message
	case Begin:
		return "Transaction started"
	case Commit:
		return "Transaction committed"
	case Rollback:
		return "Transaction rolled back"
	case CreateTable:
		return fmt.Sprintf("Created table %s", r.TableName)
	case DropTable:
		return fmt.Sprintf("Dropped table %s", r.TableName)
	case ShowTables:
		return "Showed tables"
	case Delete:
		return fmt.Sprintf("Deleted %d rows", r.RowCount)
	case Insert:
		return fmt.Sprintf("Inserted %d rows", r.RowCount)
	case Query:
		return "Query ran"
	default:
		return "?"
	}
}

// Session holds at most one open explicit transaction at a time; statements
// run outside of one get an implicit transaction that commits on success
// and rolls back on error.
type Session struct {
	engine  *engine.Engine
	current *engine.Transaction
}

// New returns a Session against engine e, with no open transaction.
func New(e *engine.Engine) *Session {
	return &Session{engine: e}
}

// Exec parses nothing itself (it runs an already-parsed statement), so
// callers control how a request's raw text is split into statements.
func (s *Session) Exec(stmt sql.Statement) (Result, error) {
	switch st := stmt.(type) {
	case *sql.BeginStatement:
		if err := s.Begin(); err != nil {
			return Result{}, err
		}
		return Result{Kind: Begin}, nil
	case *sql.CommitStatement:
		if err := s.Commit(); err != nil {
			return Result{}, err
		}
		return Result{Kind: Commit}, nil
	case *sql.RollbackStatement:
		if err := s.Rollback(); err != nil {
			return Result{}, err
		}
		return Result{Kind: Rollback}, nil
	case *sql.ShowTablesStatement:
		var tables []*types.Table
		err := s.withTransaction(func(txn *engine.Transaction) error {
			var err error
			tables, err = txn.ListTables()
			return err
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: ShowTables, Tables: tables}, nil
	default:
		return s.execPlanned(stmt)
	}
}

func (s *Session) execPlanned(stmt sql.Statement) (Result, error) {
	var result Result
	err := s.withTransaction(func(txn *engine.Transaction) error {
		p := planner.New(txn)
		node, err := p.Plan(stmt)
		if err != nil {
			return err
		}
		out, err := exec.New(txn).Execute(node)
		if err != nil {
			return err
		}
		result = toResult(out)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func toResult(out exec.Result) Result {
	switch {
	case out.IsCreate:
		return Result{Kind: CreateTable, TableName: out.TableName}
	case out.IsDrop:
		return Result{Kind: DropTable, TableName: out.TableName}
	case out.IsInsert:
		return Result{Kind: Insert, RowCount: out.RowCount, TableName: out.TableName}
	case out.IsDelete:
		return Result{Kind: Delete, RowCount: out.RowCount, TableName: out.TableName}
	case out.IsQuery:
		return Result{Kind: Query, Rows: out.Rows, Columns: out.Columns}
	default:
		return Result{Kind: Null}
	}
}

// withTransaction runs f against the session's current explicit
// transaction, or, if none is open, against a fresh transaction that is
// committed on success and rolled back on any error.
func (s *Session) withTransaction(f func(txn *engine.Transaction) error) error {
	if s.current != nil {
		return f(s.current)
	}

	txn, err := s.engine.Begin(false)
	if err != nil {
		return err
	}
	if err := f(txn); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

// Begin opens an explicit transaction, failing if one is already open.
func (s *Session) Begin() error {
	if s.current != nil {
		return verrors.New(verrors.AlreadyInTransaction, "")
	}
	txn, err := s.engine.Begin(false)
	if err != nil {
		return err
	}
	s.current = txn
	return nil
}

// Commit commits the current explicit transaction, failing if none is open.
func (s *Session) Commit() error {
	if s.current == nil {
		return verrors.New(verrors.NotInTransaction, "")
	}
	txn := s.current
	s.current = nil
	return txn.Commit()
}

// Rollback rolls back the current explicit transaction, failing if none is
// open.
func (s *Session) Rollback() error {
	if s.current == nil {
		return verrors.New(verrors.NotInTransaction, "")
	}
	txn := s.current
	s.current = nil
	return txn.Rollback()
}
