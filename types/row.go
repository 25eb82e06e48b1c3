package types

import (
	"strings"

	"github.com/clstatham/veris/internal/verrors"
)

// Row is an ordered tuple of values.
type Row []Value

func (r Row) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports whether two rows have the same length and equal values at
// every position.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if !r[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// RowIter is a forward, pull-based cursor over a stream of rows, matching
// the Next-returns-(value,ok,error) shape used by storage.Iterator and
// mvcc.ScanIterator so every layer of the engine pulls results the same way.
type RowIter interface {
	Next() (Row, bool, error)
}

// SliceRowIter adapts an in-memory []Row to the RowIter interface.
type SliceRowIter struct {
	rows []Row
	pos  int
}

// NewSliceRowIter returns a RowIter over rows, in order.
func NewSliceRowIter(rows []Row) *SliceRowIter {
	return &SliceRowIter{rows: rows}
}

func (it *SliceRowIter) Next() (Row, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

// CollectRows drains a RowIter into a slice.
func CollectRows(it RowIter) ([]Row, error) {
	var out []Row
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}

// ColumnLabelKind identifies which form a ColumnLabel takes.
type ColumnLabelKind int

const (
	LabelNone ColumnLabelKind = iota
	LabelUnqualified
	LabelQualified
)

// ColumnLabel names a result column: unlabeled, a bare name, or a
// table-qualified name.
type ColumnLabel struct {
	Kind   ColumnLabelKind
	Table  string
	Column string
}

func NewUnqualifiedLabel(name string) ColumnLabel {
	return ColumnLabel{Kind: LabelUnqualified, Column: name}
}

func NewQualifiedLabel(table, column string) ColumnLabel {
	return ColumnLabel{Kind: LabelQualified, Table: table, Column: column}
}

// TableName returns the label's table name, if qualified.
func (l ColumnLabel) TableName() (string, bool) {
	if l.Kind == LabelQualified {
		return l.Table, true
	}
	return "", false
}

// ColumnName returns the label's column name, if it has one.
func (l ColumnLabel) ColumnName() (string, bool) {
	switch l.Kind {
	case LabelUnqualified:
		return l.Column, true
	case LabelQualified:
		return l.Column, true
	default:
		return "", false
	}
}

func (l ColumnLabel) String() string {
	switch l.Kind {
	case LabelUnqualified:
		return l.Column
	case LabelQualified:
		return l.Table + "." + l.Column
	default:
		return ""
	}
}

// ParseColumnLabel builds a ColumnLabel from a dotted-name path, as produced
// by the SQL parser for `column` or `table.column` references.
func ParseColumnLabel(parts []string) (ColumnLabel, error) {
	switch len(parts) {
	case 1:
		return NewUnqualifiedLabel(parts[0]), nil
	case 2:
		return NewQualifiedLabel(parts[0], parts[1]), nil
	default:
		return ColumnLabel{}, verrors.New(verrors.InvalidColumnLabel, "%v", parts)
	}
}
