// Package join implements the two row-join strategies the planner chooses
// between: a predicate-driven nested loop for arbitrary join conditions, and
// a hash join for pure equi-joins.
package join

import (
	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/types"
)

// Type identifies which side(s) of a join must produce output even without a
// match.
type Type int

const (
	Inner Type = iota
	Left
	Right
)

func (t Type) String() string {
	switch t {
	case Inner:
		return "Inner"
	case Left:
		return "Left"
	case Right:
		return "Right"
	default:
		return "?"
	}
}

// NestedLoop pairs every left row with every right row, keeping only those
// that satisfy predicate (or all pairs, if predicate is nil). When outer is
// true, a left row with no matching right row is still emitted once, padded
// with Nulls for the right side's columns.
type NestedLoop struct {
	left      types.RowIter
	right     types.RowIter
	rightRows []types.Row
	rightCols int
	predicate expr.Expr
	outer     bool

	leftRow     types.Row
	leftOK      bool
	leftStarted bool
	rightPos    int
	rightMatch  bool
	done        bool
}

// NewNestedLoop builds a nested-loop joiner. right is drained fully up front
// so it can be replayed once per left row.
func NewNestedLoop(left, right types.RowIter, rightCols int, predicate expr.Expr, outer bool) (*NestedLoop, error) {
	rows, err := types.CollectRows(right)
	if err != nil {
		return nil, err
	}
	return &NestedLoop{
		left:      left,
		rightRows: rows,
		rightCols: rightCols,
		predicate: predicate,
		outer:     outer,
	}, nil
}

func (j *NestedLoop) advanceLeft() error {
	row, ok, err := j.left.Next()
	if err != nil {
		return err
	}
	j.leftRow, j.leftOK = row, ok
	j.rightPos = 0
	j.rightMatch = false
	return nil
}

// Next returns the next joined row, or (nil, false, nil) once exhausted.
func (j *NestedLoop) Next() (types.Row, bool, error) {
	if j.done {
		return nil, false, nil
	}
	if !j.leftStarted {
		j.leftStarted = true
		if err := j.advanceLeft(); err != nil {
			return nil, false, err
		}
	}

	for j.leftOK {
		for j.rightPos < len(j.rightRows) {
			right := j.rightRows[j.rightPos]
			j.rightPos++

			row := make(types.Row, 0, len(j.leftRow)+len(right))
			row = append(row, j.leftRow...)
			row = append(row, right...)

			if j.predicate != nil {
				v, err := j.predicate.Eval(row)
				if err != nil {
					return nil, false, err
				}
				switch {
				case v.Kind == types.BooleanValue && v.Bool:
				case v.Kind == types.BooleanValue && !v.Bool, v.Kind == types.Null:
					continue
				default:
					return nil, false, verrors.New(verrors.InvalidFilterResult, "%s", v)
				}
			}
			j.rightMatch = true
			return row, true, nil
		}

		if !j.rightMatch && j.outer {
			j.rightMatch = true
			row := make(types.Row, 0, len(j.leftRow)+j.rightCols)
			row = append(row, j.leftRow...)
			for i := 0; i < j.rightCols; i++ {
				row = append(row, types.NewNull())
			}
			return row, true, nil
		}

		if err := j.advanceLeft(); err != nil {
			return nil, false, err
		}
	}

	j.done = true
	return nil, false, nil
}

// Hash joins left and right on equality of left[leftCol] and right[rightCol],
// building a map over the (fully materialized) right side first. Rows whose
// join key is Null never match, per SQL equality semantics.
type Hash struct {
	left      types.RowIter
	leftCol   int
	buckets   map[uint64][]bucketEntry
	rightCols int
	outer     bool

	pending    []types.Row
	pendingPos int
}

type bucketEntry struct {
	key  types.Value
	rows []types.Row
}

// NewHash builds a hash joiner, draining right into an in-memory hash table
// keyed by right[rightCol].
func NewHash(left types.RowIter, leftCol int, right types.RowIter, rightCol, rightCols int, outer bool) (*Hash, error) {
	buckets := make(map[uint64][]bucketEntry)
	for {
		row, ok, err := right.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		key := row[rightCol]
		if key.Kind == types.Null {
			continue
		}
		h := key.Hash()
		entries := buckets[h]
		found := false
		for i := range entries {
			if entries[i].key.Equal(key) {
				entries[i].rows = append(entries[i].rows, row)
				found = true
				break
			}
		}
		if !found {
			buckets[h] = append(entries, bucketEntry{key: key, rows: []types.Row{row}})
		}
	}
	return &Hash{
		left:      left,
		leftCol:   leftCol,
		buckets:   buckets,
		rightCols: rightCols,
		outer:     outer,
	}, nil
}

func (j *Hash) lookup(key types.Value) []types.Row {
	if key.Kind == types.Null {
		return nil
	}
	for _, entry := range j.buckets[key.Hash()] {
		if entry.key.Equal(key) {
			return entry.rows
		}
	}
	return nil
}

// Next returns the next joined row, or (nil, false, nil) once exhausted.
func (j *Hash) Next() (types.Row, bool, error) {
	if j.pendingPos < len(j.pending) {
		row := j.pending[j.pendingPos]
		j.pendingPos++
		return row, true, nil
	}

	for {
		left, ok, err := j.left.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}

		matches := j.lookup(left[j.leftCol])
		if len(matches) > 0 {
			joined := make([]types.Row, len(matches))
			for i, right := range matches {
				row := make(types.Row, 0, len(left)+len(right))
				row = append(row, left...)
				row = append(row, right...)
				joined[i] = row
			}
			j.pending = joined
			j.pendingPos = 1
			return joined[0], true, nil
		}

		if j.outer {
			row := make(types.Row, 0, len(left)+j.rightCols)
			row = append(row, left...)
			for i := 0; i < j.rightCols; i++ {
				row = append(row, types.NewNull())
			}
			return row, true, nil
		}
	}
}
