// Package exec executes a plan.Node tree against a catalog transaction,
// producing either a row stream (for a query) or a StatementResult
// describing the statement's side effect.
package exec

import (
	"github.com/clstatham/veris/engine"
	"github.com/clstatham/veris/exec/aggregate"
	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/exec/join"
	"github.com/clstatham/veris/exec/plan"
	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/types"
)

// Executor runs a plan against a single catalog transaction.
type Executor struct {
	txn *engine.Transaction
}

// New returns an Executor bound to txn.
func New(txn *engine.Transaction) *Executor {
	return &Executor{txn: txn}
}

// Result is what running a top-level plan produces: either rows with their
// column labels (a Query), or a count of rows affected (Insert/Delete), or
// nothing (CreateTable/DropTable).
type Result struct {
	Rows      []types.Row
	Columns   []types.ColumnLabel
	RowCount  int
	TableName string
	IsQuery   bool
	IsCreate  bool
	IsDrop    bool
	IsInsert  bool
	IsDelete  bool
}

// Execute runs a top-level plan node (CreateTable, DropTable, Insert,
// Delete, or Query) and returns its Result.
func (e *Executor) Execute(node plan.Node) (Result, error) {
	switch n := node.(type) {
	case *plan.CreateTable:
		if err := e.txn.CreateTable(n.Table); err != nil {
			return Result{}, err
		}
		return Result{IsCreate: true, TableName: n.Table.Name}, nil

	case *plan.DropTable:
		if err := e.txn.DropTable(n.Name); err != nil {
			return Result{}, err
		}
		return Result{IsDrop: true, TableName: n.Name}, nil

	case *plan.Insert:
		count, err := e.executeInsert(n)
		if err != nil {
			return Result{}, err
		}
		return Result{IsInsert: true, RowCount: count, TableName: n.Table.Name}, nil

	case *plan.Delete:
		count, err := e.executeDelete(n)
		if err != nil {
			return Result{}, err
		}
		return Result{IsDelete: true, RowCount: count, TableName: n.Table.Name}, nil

	case *plan.Query:
		columns := make([]types.ColumnLabel, n.NumColumns())
		for i := range columns {
			columns[i] = n.ColumnLabel(i)
		}
		it, err := e.executeInner(n.Source)
		if err != nil {
			return Result{}, err
		}
		rows, err := types.CollectRows(it)
		if err != nil {
			return Result{}, err
		}
		return Result{IsQuery: true, Rows: rows, Columns: columns}, nil

	default:
		return Result{}, verrors.New(verrors.InvalidPlan, "%T", node)
	}
}

func (e *Executor) executeInsert(n *plan.Insert) (int, error) {
	source, err := e.executeInner(n.Source)
	if err != nil {
		return 0, err
	}
	var rows []types.Row
	for {
		row, ok, err := source.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		if !n.Table.ValidateRow(row) {
			return 0, verrors.New(verrors.InvalidRow, "%s", n.Table.Name)
		}
		casted := make(types.Row, len(row))
		for i, v := range row {
			cv, err := v.TryCast(n.Table.Columns[i].DataType)
			if err != nil {
				return 0, err
			}
			casted[i] = cv
		}
		rows = append(rows, casted)
	}
	if err := e.txn.Insert(n.Table.Name, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (e *Executor) executeDelete(n *plan.Delete) (int, error) {
	it, err := e.txn.Scan(n.Table.Name, n.Predicate)
	if err != nil {
		return 0, err
	}
	var ids []types.Value
	for {
		row, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		ids = append(ids, row[n.Table.PrimaryKeyIndex])
	}
	if err := e.txn.Delete(n.Table.Name, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (e *Executor) executeInner(node plan.Node) (types.RowIter, error) {
	switch n := node.(type) {
	case *plan.Query:
		return e.executeInner(n.Source)
	case *plan.Values:
		return e.executeValues(n)
	case *plan.Scan:
		return e.txn.Scan(n.Table.Name, n.Filter)
	case *plan.Join:
		return e.executeJoin(n)
	case *plan.Aggregate:
		return e.executeAggregate(n)
	case *plan.Filter:
		return e.executeFilter(n)
	case *plan.Project:
		return e.executeProject(n)
	case *plan.Nothing:
		return types.NewSliceRowIter(nil), nil
	default:
		return nil, verrors.New(verrors.InvalidPlan, "%T", node)
	}
}

func (e *Executor) executeValues(n *plan.Values) (types.RowIter, error) {
	rows := make([]types.Row, len(n.Rows))
	for i, exprRow := range n.Rows {
		row := make(types.Row, len(exprRow))
		for j, ex := range exprRow {
			v, err := ex.Eval(nil)
			if err != nil {
				return nil, err
			}
			row[j] = v
		}
		rows[i] = row
	}
	return types.NewSliceRowIter(rows), nil
}

// equiJoinColumns reports, when on is exactly `col op col` with Equal,
// which 0-indexed columns of the combined (left++right) row it compares,
// the shape the planner can only produce from a simple equality predicate.
func equiJoinColumns(on expr.Expr, leftCols int) (leftCol, rightCol int, ok bool) {
	b, isBinary := on.(expr.Binary)
	if !isBinary || b.Op != expr.Equal {
		return 0, 0, false
	}
	l, lok := b.Left.(expr.Column)
	r, rok := b.Right.(expr.Column)
	if !lok || !rok {
		return 0, 0, false
	}
	if l.Index < leftCols && r.Index >= leftCols {
		return l.Index, r.Index - leftCols, true
	}
	if r.Index < leftCols && l.Index >= leftCols {
		return r.Index, l.Index - leftCols, true
	}
	return 0, 0, false
}

func (e *Executor) executeJoin(n *plan.Join) (types.RowIter, error) {
	leftCols := n.Left.NumColumns()
	rightCols := n.Right.NumColumns()
	left, err := e.executeInner(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.executeInner(n.Right)
	if err != nil {
		return nil, err
	}

	outer := n.Type != join.Inner

	if n.On != nil {
		if leftCol, rightCol, ok := equiJoinColumns(n.On, leftCols); ok {
			return join.NewHash(left, leftCol, right, rightCol, rightCols, outer)
		}
	}
	return join.NewNestedLoop(left, right, rightCols, n.On, outer)
}

func (e *Executor) executeAggregate(n *plan.Aggregate) (types.RowIter, error) {
	source, err := e.executeInner(n.Source)
	if err != nil {
		return nil, err
	}
	agg := aggregate.New(n.GroupBy, n.Aggregates)
	for {
		row, ok, err := source.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := agg.AddRow(row); err != nil {
			return nil, err
		}
	}
	rows, err := agg.Finish()
	if err != nil {
		return nil, err
	}
	return types.NewSliceRowIter(rows), nil
}

func (e *Executor) executeFilter(n *plan.Filter) (types.RowIter, error) {
	source, err := e.executeInner(n.Source)
	if err != nil {
		return nil, err
	}
	return &filterIter{source: source, predicate: n.Predicate}, nil
}

// filterIter passes rows through from source, dropping those whose predicate
// evaluates to Boolean(false) and failing InvalidFilterResult for anything
// that is not a Boolean at all. It never buffers more than one row at a time.
type filterIter struct {
	source    types.RowIter
	predicate expr.Expr
}

func (f *filterIter) Next() (types.Row, bool, error) {
	for {
		row, ok, err := f.source.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		v, err := f.predicate.Eval(row)
		if err != nil {
			return nil, false, err
		}
		if v.Kind != types.BooleanValue {
			return nil, false, verrors.New(verrors.InvalidFilterResult, "%s", v)
		}
		if v.Bool {
			return row, true, nil
		}
	}
}

func (e *Executor) executeProject(n *plan.Project) (types.RowIter, error) {
	source, err := e.executeInner(n.Source)
	if err != nil {
		return nil, err
	}
	return &projectIter{source: source, columns: n.Columns}, nil
}

// projectIter evaluates each column expression against one input row at a
// time, never materializing the whole source.
type projectIter struct {
	source  types.RowIter
	columns []expr.Expr
}

func (p *projectIter) Next() (types.Row, bool, error) {
	row, ok, err := p.source.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	projected := make(types.Row, len(p.columns))
	for i, c := range p.columns {
		v, err := c.Eval(row)
		if err != nil {
			return nil, false, err
		}
		projected[i] = v
	}
	return projected, true, nil
}
