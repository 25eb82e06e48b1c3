package engine

import (
	"path/filepath"
	"testing"

	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/mvcc"
	"github.com/clstatham/veris/storage"
	"github.com/clstatham/veris/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.log")
	b, err := storage.OpenFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return New(mvcc.New(b))
}

func usersTable() *types.Table {
	return &types.Table{
		Name:            "users",
		PrimaryKeyIndex: 0,
		Columns: []types.Column{
			{Name: "id", DataType: types.NewInteger()},
			{Name: "name", DataType: types.NewString(nil), HasSecondaryIndex: true},
		},
	}
}

func postsTable() *types.Table {
	return &types.Table{
		Name:            "posts",
		PrimaryKeyIndex: 0,
		Columns: []types.Column{
			{Name: "id", DataType: types.NewInteger()},
			{
				Name:              "author_id",
				DataType:          types.NewInteger(),
				References:        &types.ForeignKey{Table: "users", Columns: []string{"id"}},
				HasSecondaryIndex: true,
			},
		},
	}
}

func TestCreateDropTable(t *testing.T) {
	e := newTestEngine(t)
	txn, err := e.Begin(false)
	if err != nil {
		t.Fatal(err)
	}

	if err := txn.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}
	if err := txn.CreateTable(usersTable()); !verrors.Is(err, verrors.TableAlreadyExists) {
		t.Fatalf("expected TableAlreadyExists, got %v", err)
	}

	got, err := txn.GetTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "users" {
		t.Fatalf("got %+v", got)
	}

	if err := txn.DropTable("users"); err != nil {
		t.Fatal(err)
	}
	if got, err := txn.GetTable("users"); err != nil || got != nil {
		t.Fatalf("expected table to be gone, got %+v, %v", got, err)
	}
	if err := txn.DropTable("users"); !verrors.Is(err, verrors.TableDoesNotExist) {
		t.Fatalf("expected TableDoesNotExist, got %v", err)
	}
}

func TestInsertGetScan(t *testing.T) {
	e := newTestEngine(t)
	txn, err := e.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}

	rows := []types.Row{
		{types.NewInt(1), types.NewString_("ann")},
		{types.NewInt(2), types.NewString_("bob")},
	}
	if err := txn.Insert("users", rows); err != nil {
		t.Fatal(err)
	}

	got, err := txn.Get("users", []types.Value{types.NewInt(2), types.NewInt(99)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0][1].Equal(types.NewString_("bob")) {
		t.Fatalf("got %v", got)
	}

	set, err := txn.LookupIndex("users", "name", []types.Value{types.NewString_("ann")})
	if err != nil {
		t.Fatal(err)
	}
	if set.Empty() || !set.Values()[0].Equal(types.NewInt(1)) {
		t.Fatalf("lookup index got %v", set.Values())
	}

	it, err := txn.Scan("users", nil)
	if err != nil {
		t.Fatal(err)
	}
	var scanned []types.Row
	for {
		row, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		scanned = append(scanned, row)
	}
	if len(scanned) != 2 {
		t.Fatalf("got %d rows, want 2", len(scanned))
	}
}

func TestDeleteMaintainsIndex(t *testing.T) {
	e := newTestEngine(t)
	txn, err := e.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert("users", []types.Row{{types.NewInt(1), types.NewString_("ann")}}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Delete("users", []types.Value{types.NewInt(1)}); err != nil {
		t.Fatal(err)
	}
	set, err := txn.LookupIndex("users", "name", []types.Value{types.NewString_("ann")})
	if err != nil {
		t.Fatal(err)
	}
	if !set.Empty() {
		t.Fatalf("expected index entry to be removed, got %v", set.Values())
	}
}

func TestDeleteReferentialIntegrity(t *testing.T) {
	e := newTestEngine(t)
	txn, err := e.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}
	if err := txn.CreateTable(postsTable()); err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert("users", []types.Row{{types.NewInt(1), types.NewString_("ann")}}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert("posts", []types.Row{{types.NewInt(10), types.NewInt(1)}}); err != nil {
		t.Fatal(err)
	}

	if err := txn.Delete("users", []types.Value{types.NewInt(1)}); !verrors.Is(err, verrors.ReferentialIntegrity) {
		t.Fatalf("expected ReferentialIntegrity, got %v", err)
	}

	if err := txn.Delete("posts", []types.Value{types.NewInt(10)}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Delete("users", []types.Value{types.NewInt(1)}); err != nil {
		t.Fatalf("delete should succeed once referencing row is gone: %v", err)
	}
}

func TestDeleteSelfReferenceExcluded(t *testing.T) {
	e := newTestEngine(t)
	txn, err := e.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	tbl := &types.Table{
		Name:            "nodes",
		PrimaryKeyIndex: 0,
		Columns: []types.Column{
			{Name: "id", DataType: types.NewInteger()},
			{
				Name:              "parent_id",
				DataType:          types.NewInteger(),
				Nullable:          true,
				References:        &types.ForeignKey{Table: "nodes", Columns: []string{"id"}},
				HasSecondaryIndex: true,
			},
		},
	}
	if err := txn.CreateTable(tbl); err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert("nodes", []types.Row{{types.NewInt(1), types.NewInt(1)}}); err != nil {
		t.Fatal(err)
	}
	// Node 1 references itself as its own parent; that reference must not
	// block deleting it.
	if err := txn.Delete("nodes", []types.Value{types.NewInt(1)}); err != nil {
		t.Fatalf("self-reference should not block delete: %v", err)
	}
}
