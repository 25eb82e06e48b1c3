package scope

import (
	"testing"

	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/types"
)

func testTable(name string) *types.Table {
	return &types.Table{
		Name:            name,
		PrimaryKeyIndex: 0,
		Columns: []types.Column{
			{Name: "id", DataType: types.NewInteger()},
			{Name: "name", DataType: types.NewString(nil)},
		},
	}
}

func TestFromTableAndResolve(t *testing.T) {
	s, err := FromTable(testTable("users"), nil)
	if err != nil {
		t.Fatal(err)
	}
	table := "users"
	idx, ok := s.GetColumnIndex(&table, "name")
	if !ok || idx != 1 {
		t.Fatalf("got %d, %v want 1, true", idx, ok)
	}
	idx, ok = s.GetColumnIndex(nil, "id")
	if !ok || idx != 0 {
		t.Fatalf("got %d, %v want 0, true", idx, ok)
	}
}

func TestAddTableAlias(t *testing.T) {
	s := New()
	alias := "u"
	if err := s.AddTable(testTable("users"), &alias); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTable(testTable("users"), &alias); !verrors.Is(err, verrors.DuplicateTable) {
		t.Fatalf("expected DuplicateTable, got %v", err)
	}
}

func TestAmbiguousUnqualifiedColumn(t *testing.T) {
	s := New()
	if err := s.AddTable(testTable("a"), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTable(testTable("b"), nil); err != nil {
		t.Fatal(err)
	}
	_, ok := s.GetColumnIndex(nil, "id")
	if ok {
		t.Fatal("expected ambiguous unqualified column to fail resolution")
	}
	table := "a"
	idx, ok := s.GetColumnIndex(&table, "id")
	if !ok || idx != 0 {
		t.Fatalf("got %d, %v want 0, true", idx, ok)
	}
}

func TestSpawnAndMerge(t *testing.T) {
	left, err := FromTable(testTable("a"), nil)
	if err != nil {
		t.Fatal(err)
	}
	right, err := FromTable(testTable("b"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := left.MergeWith(right); err != nil {
		t.Fatal(err)
	}
	if left.Len() != 4 {
		t.Fatalf("got %d columns, want 4", left.Len())
	}
	table := "b"
	idx, ok := left.GetColumnIndex(&table, "name")
	if !ok || idx != 3 {
		t.Fatalf("got %d, %v want 3, true", idx, ok)
	}

	child := left.Spawn()
	if child.Len() != 0 {
		t.Fatalf("expected spawned scope to start empty, got %d columns", child.Len())
	}
	if _, ok := child.tables["a"]; !ok {
		t.Fatal("expected spawned scope to retain parent's table set")
	}
}

func TestAddAggregateDuplicateRejected(t *testing.T) {
	s := New()
	label := types.NewUnqualifiedLabel("age")
	if _, err := s.AddAggregate("COUNT(age)", label); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddAggregate("COUNT(age)", label); !verrors.Is(err, verrors.DuplicateAggregate) {
		t.Fatalf("expected DuplicateAggregate, got %v", err)
	}
}

func TestGetColumnLabelOutOfRange(t *testing.T) {
	s := New()
	if _, err := s.GetColumnLabel(0); !verrors.Is(err, verrors.InvalidColumnIndex) {
		t.Fatalf("expected InvalidColumnIndex, got %v", err)
	}
}
