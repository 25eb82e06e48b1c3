// Package scope implements the name-resolution table built up while
// planning a query: which tables and columns are in scope, and the column
// index that each qualified or unqualified name resolves to.
package scope

import (
	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/types"
)

type qualifiedKey struct {
	table  string
	column string
}

// Scope tracks the columns visible at one point during planning, along with
// the tables that contributed them and any aggregate expressions already
// allocated a column slot.
type Scope struct {
	columns     []types.ColumnLabel
	tables      map[string]struct{}
	qualified   map[qualifiedKey]int
	unqualified map[string][]int
	// aggregates maps a canonical string rendering of an aggregate call
	// (e.g. "COUNT(users.age)") to the column index allocated for it. The
	// planner computes this key from its own AST node; Scope stays
	// independent of the SQL front end's AST types.
	aggregates map[string]int
}

// New returns an empty Scope.
func New() *Scope {
	return &Scope{
		tables:      map[string]struct{}{},
		qualified:   map[qualifiedKey]int{},
		unqualified: map[string][]int{},
		aggregates:  map[string]int{},
	}
}

// FromTable returns a Scope containing exactly one table's columns, as seen
// through alias (or the table's own name if alias is nil).
func FromTable(table *types.Table, alias *string) (*Scope, error) {
	s := New()
	if err := s.AddTable(table, alias); err != nil {
		return nil, err
	}
	return s, nil
}

// Spawn returns a new child Scope that knows which tables are visible but
// starts with no columns, used when planning a GROUP BY/aggregate
// projection against a fresh output row shape.
func (s *Scope) Spawn() *Scope {
	child := New()
	for t := range s.tables {
		child.tables[t] = struct{}{}
	}
	return child
}

// MergeWith absorbs another scope's tables and columns, appending the
// columns after this scope's existing ones (used when building the combined
// scope for a join's left and right sides).
func (s *Scope) MergeWith(other *Scope) error {
	for t := range other.tables {
		s.tables[t] = struct{}{}
	}
	offset := len(s.columns)
	for _, label := range other.columns {
		if _, err := s.AddColumn(label); err != nil {
			return err
		}
	}
	for key, index := range other.aggregates {
		if _, ok := s.aggregates[key]; !ok {
			s.aggregates[key] = index + offset
		}
	}
	return nil
}

// AddTable registers every column of table (under alias if given) as a
// qualified column in this scope.
func (s *Scope) AddTable(table *types.Table, alias *string) error {
	name := table.Name
	if alias != nil {
		name = *alias
	}
	if _, exists := s.tables[name]; exists {
		return verrors.New(verrors.DuplicateTable, "%s", name)
	}
	for _, col := range table.Columns {
		label := types.NewQualifiedLabel(name, col.Name)
		if _, err := s.AddColumn(label); err != nil {
			return err
		}
	}
	s.tables[name] = struct{}{}
	return nil
}

// AddColumn appends label as a new column and returns its index.
func (s *Scope) AddColumn(label types.ColumnLabel) (int, error) {
	index := len(s.columns)
	if table, ok := label.TableName(); ok {
		if col, ok := label.ColumnName(); ok {
			s.qualified[qualifiedKey{table, col}] = index
		}
	}
	if col, ok := label.ColumnName(); ok {
		s.unqualified[col] = append(s.unqualified[col], index)
	}
	s.columns = append(s.columns, label)
	return index, nil
}

// AddAggregate allocates a new column for an aggregate expression identified
// by key, labeled label (the label of its single argument, or ColumnLabel{}
// if the argument isn't a simple column reference).
func (s *Scope) AddAggregate(key string, label types.ColumnLabel) (int, error) {
	if _, exists := s.aggregates[key]; exists {
		return 0, verrors.New(verrors.DuplicateAggregate, "%s", key)
	}
	index, err := s.AddColumn(label)
	if err != nil {
		return 0, err
	}
	s.aggregates[key] = index
	return index, nil
}

// GetAggregateIndex returns the column index previously allocated for the
// aggregate identified by key.
func (s *Scope) GetAggregateIndex(key string) (int, bool) {
	index, ok := s.aggregates[key]
	return index, ok
}

// GetColumnIndex resolves a (possibly table-qualified) column name to its
// index. An unqualified name that matches more than one column is
// ambiguous and resolves to nothing, same as an unknown name.
func (s *Scope) GetColumnIndex(table *string, name string) (int, bool) {
	if len(s.columns) == 0 {
		return 0, false
	}
	if table != nil {
		if _, ok := s.tables[*table]; !ok {
			return 0, false
		}
		if index, ok := s.qualified[qualifiedKey{*table, name}]; ok {
			return index, true
		}
		return 0, false
	}
	indices, ok := s.unqualified[name]
	if !ok || len(indices) != 1 {
		return 0, false
	}
	return indices[0], true
}

// GetColumnLabel returns the label at index.
func (s *Scope) GetColumnLabel(index int) (types.ColumnLabel, error) {
	if index < 0 || index >= len(s.columns) {
		return types.ColumnLabel{}, verrors.New(verrors.InvalidColumnIndex, "column index %d out of range", index)
	}
	return s.columns[index], nil
}

// Len returns the number of columns currently in scope.
func (s *Scope) Len() int { return len(s.columns) }
