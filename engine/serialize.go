package engine

import (
	"encoding/json"
	"sort"

	"github.com/clstatham/veris/types"
)

// Stored values (table schemas, rows, secondary-index posting lists) are
// serialized as JSON: the same self-describing, line-delimited format this
// server already speaks on the wire, reused internally so there's exactly
// one encoding convention in the codebase rather than two.

func encodeTable(t *types.Table) ([]byte, error) {
	return json.Marshal(t)
}

func decodeTable(b []byte) (*types.Table, error) {
	var t types.Table
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeRow(r types.Row) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRow(b []byte) (types.Row, error) {
	var r types.Row
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// idSet is a deduplicated, sorted set of primary-key values backing one
// secondary-index posting list (a sorted slice in place of a BTreeSet),
// consistent with the sorted-slice approach already used for the Bitcask
// KeyDir.
type idSet struct {
	values []types.Value
}

func newIDSet() *idSet { return &idSet{} }

func (s *idSet) find(v types.Value) (int, bool) {
	i := sort.Search(len(s.values), func(i int) bool { return s.values[i].Compare(v) >= 0 })
	return i, i < len(s.values) && s.values[i].Equal(v)
}

func (s *idSet) Add(v types.Value) {
	i, ok := s.find(v)
	if ok {
		return
	}
	s.values = append(s.values, types.Value{})
	copy(s.values[i+1:], s.values[i:])
	s.values[i] = v
}

func (s *idSet) Remove(v types.Value) {
	if i, ok := s.find(v); ok {
		s.values = append(s.values[:i], s.values[i+1:]...)
	}
}

func (s *idSet) Empty() bool { return len(s.values) == 0 }

func (s *idSet) Values() []types.Value { return s.values }

func encodeIDSet(s *idSet) ([]byte, error) {
	return json.Marshal(s.values)
}

func decodeIDSet(b []byte) (*idSet, error) {
	var values []types.Value
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, err
	}
	return &idSet{values: values}, nil
}
