// Package aggregate implements GROUP BY evaluation: per-group accumulators
// for AVG/COUNT/MAX/MIN/SUM, keyed by the evaluated group-by expressions.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/types"
)

// Func identifies which aggregate function an Aggregate computes.
type Func int

const (
	Average Func = iota
	Count
	Max
	Min
	Sum
)

func (f Func) String() string {
	switch f {
	case Average:
		return "AVG"
	case Count:
		return "COUNT"
	case Max:
		return "MAX"
	case Min:
		return "MIN"
	case Sum:
		return "SUM"
	default:
		return "?"
	}
}

// Aggregate is one aggregate call in a SELECT list: a function applied to an
// expression evaluated once per input row.
type Aggregate struct {
	Func Func
	Expr expr.Expr
}

func (a Aggregate) String() string { return fmt.Sprintf("%s(%s)", a.Func, a.Expr) }

// Aggregator groups incoming rows by the evaluated group_by expressions and
// maintains one Accumulator per Aggregate for each group.
type Aggregator struct {
	groupBy    []expr.Expr
	aggregates []Aggregate

	keys   [][]types.Value
	values [][]*accumulator
}

// New builds an Aggregator for the given grouping expressions and aggregate
// calls. An empty groupBy puts every row added into a single group; if no
// row is ever added there is no group, and Finish returns no rows.
func New(groupBy []expr.Expr, aggregates []Aggregate) *Aggregator {
	return &Aggregator{groupBy: groupBy, aggregates: aggregates}
}

func compareKeys(a, b []types.Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func (a *Aggregator) findGroup(key []types.Value) int {
	return sort.Search(len(a.keys), func(i int) bool { return compareKeys(a.keys[i], key) >= 0 })
}

// AddRow evaluates the group key and every aggregate expression against row,
// folding the result into the matching group's accumulators.
func (a *Aggregator) AddRow(row types.Row) error {
	key := make([]types.Value, len(a.groupBy))
	for i, g := range a.groupBy {
		v, err := g.Eval(row)
		if err != nil {
			return err
		}
		key[i] = v
	}

	i := a.findGroup(key)
	if i == len(a.keys) || compareKeys(a.keys[i], key) != 0 {
		accs := make([]*accumulator, len(a.aggregates))
		for j, agg := range a.aggregates {
			accs[j] = newAccumulator(agg.Func)
		}
		a.keys = append(a.keys, nil)
		copy(a.keys[i+1:], a.keys[i:])
		a.keys[i] = key

		a.values = append(a.values, nil)
		copy(a.values[i+1:], a.values[i:])
		a.values[i] = accs
	}

	for j, agg := range a.aggregates {
		v, err := agg.Expr.Eval(row)
		if err != nil {
			return err
		}
		if err := a.values[i][j].addValue(v); err != nil {
			return err
		}
	}
	return nil
}

// Finish returns one output row per group, in ascending group-key order:
// the group-by values followed by each aggregate's final value.
func (a *Aggregator) Finish() ([]types.Row, error) {
	rows := make([]types.Row, len(a.keys))
	for i, key := range a.keys {
		row := make(types.Row, 0, len(key)+len(a.aggregates))
		row = append(row, key...)
		for _, acc := range a.values[i] {
			v, err := acc.value()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		rows[i] = row
	}
	return rows, nil
}

type accumulator struct {
	fn    Func
	count int64
	sum   *types.Value
	extra *types.Value // Max/Min current value
	set   bool
}

func newAccumulator(fn Func) *accumulator {
	a := &accumulator{fn: fn}
	if fn == Average {
		sum := types.NewInt(0)
		a.sum = &sum
	}
	return a
}

func (a *accumulator) addValue(v types.Value) error {
	if v.Kind == types.Null {
		return nil
	}
	switch a.fn {
	case Average:
		sum, err := a.sum.CheckedAdd(v)
		if err != nil {
			return err
		}
		a.sum = &sum
		a.count++
	case Count:
		a.count++
	case Max:
		if !a.set || v.Compare(*a.extra) > 0 {
			a.extra = &v
			a.set = true
		}
	case Min:
		if !a.set || v.Compare(*a.extra) < 0 {
			a.extra = &v
			a.set = true
		}
	case Sum:
		if !a.set {
			zero := types.NewInt(0)
			sum, err := zero.CheckedAdd(v)
			if err != nil {
				return err
			}
			a.extra = &sum
			a.set = true
		} else {
			sum, err := a.extra.CheckedAdd(v)
			if err != nil {
				return err
			}
			a.extra = &sum
		}
	}
	return nil
}

func (a *accumulator) value() (types.Value, error) {
	switch a.fn {
	case Average:
		if a.count == 0 {
			return types.NewNull(), nil
		}
		return a.sum.CheckedDiv(types.NewInt(a.count))
	case Count:
		return types.NewInt(a.count), nil
	case Max, Min, Sum:
		if !a.set {
			return types.NewNull(), nil
		}
		return *a.extra, nil
	default:
		return types.NewNull(), nil
	}
}
