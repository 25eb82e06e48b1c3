package planner

import (
	"path/filepath"
	"testing"

	"github.com/clstatham/veris/engine"
	"github.com/clstatham/veris/exec/join"
	"github.com/clstatham/veris/exec/plan"
	"github.com/clstatham/veris/mvcc"
	"github.com/clstatham/veris/sql"
	"github.com/clstatham/veris/storage"
	"github.com/clstatham/veris/types"
)

func newTestTxn(t *testing.T) *engine.Transaction {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.log")
	b, err := storage.OpenFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	e := engine.New(mvcc.New(b))
	txn, err := e.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	return txn
}

func createTable(t *testing.T, txn *engine.Transaction, tbl *types.Table) {
	t.Helper()
	if err := txn.CreateTable(tbl); err != nil {
		t.Fatal(err)
	}
}

func usersTable() *types.Table {
	return &types.Table{
		Name:            "users",
		PrimaryKeyIndex: 0,
		Columns: []types.Column{
			{Name: "id", DataType: types.NewInteger()},
			{Name: "name", DataType: types.NewString(nil)},
		},
	}
}

func postsTable() *types.Table {
	return &types.Table{
		Name:            "posts",
		PrimaryKeyIndex: 0,
		Columns: []types.Column{
			{Name: "id", DataType: types.NewInteger()},
			{Name: "author_id", DataType: types.NewInteger()},
		},
	}
}

func parsePlan(t *testing.T, p *Planner, sqlText string) plan.Node {
	t.Helper()
	stmt, err := sql.Parse(sqlText)
	if err != nil {
		t.Fatalf("parse %q: %v", sqlText, err)
	}
	node, err := p.Plan(stmt)
	if err != nil {
		t.Fatalf("plan %q: %v", sqlText, err)
	}
	return node
}

func TestPlanBareWildcardSelectElidesProject(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, usersTable())
	p := New(txn)

	node := parsePlan(t, p, "SELECT * FROM users")
	query, ok := node.(*plan.Query)
	if !ok {
		t.Fatalf("got %T", node)
	}
	if _, ok := query.Source.(*plan.Scan); !ok {
		t.Fatalf("expected a bare SELECT * to skip Project, got %T", query.Source)
	}
}

func TestPlanExplicitProjectionAddsProjectNode(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, usersTable())
	p := New(txn)

	node := parsePlan(t, p, "SELECT name FROM users")
	query := node.(*plan.Query)
	if _, ok := query.Source.(*plan.Project); !ok {
		t.Fatalf("expected an explicit column list to produce a Project, got %T", query.Source)
	}
}

func TestPlanDeleteWithoutWhereHasNilPredicate(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, usersTable())
	p := New(txn)

	node := parsePlan(t, p, "DELETE FROM users")
	del, ok := node.(*plan.Delete)
	if !ok {
		t.Fatalf("got %T", node)
	}
	if del.Predicate != nil {
		t.Fatalf("expected a nil predicate for an unconditional delete, got %v", del.Predicate)
	}
}

func TestPlanDeleteWithWhereBuildsPredicate(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, usersTable())
	p := New(txn)

	node := parsePlan(t, p, "DELETE FROM users WHERE id = 1")
	del := node.(*plan.Delete)
	if del.Predicate == nil {
		t.Fatal("expected a non-nil predicate")
	}
}

func TestPlanRightJoinRewrittenToLeftWithSwappedSides(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, usersTable())
	createTable(t, txn, postsTable())
	p := New(txn)

	node := parsePlan(t, p, "SELECT * FROM users u RIGHT JOIN posts po ON u.id = po.author_id")
	query := node.(*plan.Query)
	j, ok := query.Source.(*plan.Join)
	if !ok {
		t.Fatalf("got %T", query.Source)
	}
	if j.Type != join.Left {
		t.Fatalf("expected RIGHT JOIN to be rewritten to Left, got %s", j.Type)
	}
	leftScan, ok := j.Left.(*plan.Scan)
	if !ok || leftScan.Table.Name != "posts" {
		t.Fatalf("expected the originally-right table first after the swap, got %+v", j.Left)
	}
}

func TestPlanLeftJoinKeepsSideOrder(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, usersTable())
	createTable(t, txn, postsTable())
	p := New(txn)

	node := parsePlan(t, p, "SELECT * FROM users u LEFT JOIN posts po ON u.id = po.author_id")
	query := node.(*plan.Query)
	j := query.Source.(*plan.Join)
	if j.Type != join.Left {
		t.Fatalf("got %s", j.Type)
	}
	leftScan := j.Left.(*plan.Scan)
	if leftScan.Table.Name != "users" {
		t.Fatalf("expected left side to stay users, got %s", leftScan.Table.Name)
	}
}

func TestPlanGroupByAggregate(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, postsTable())
	p := New(txn)

	node := parsePlan(t, p, "SELECT author_id, COUNT(*) FROM posts GROUP BY author_id")
	query := node.(*plan.Query)
	agg := findAggregate(query.Source)
	if agg == nil {
		t.Fatalf("got %T", query.Source)
	}
	if len(agg.GroupBy) != 1 || len(agg.Aggregates) != 1 {
		t.Fatalf("got %+v", agg)
	}
}

func TestPlanDuplicateAggregateCallsShareOneSlot(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, postsTable())
	p := New(txn)

	// Both projection items reference the exact same aggregate call; the
	// planner should only allocate one accumulator for it.
	node := parsePlan(t, p, "SELECT COUNT(*), COUNT(*) FROM posts")
	query := node.(*plan.Query)
	agg := findAggregate(query.Source)
	if agg == nil {
		t.Fatal("expected an Aggregate node in the plan")
	}
	if len(agg.Aggregates) != 1 {
		t.Fatalf("expected duplicate COUNT(*) calls to collapse to 1 slot, got %d", len(agg.Aggregates))
	}
}

func findAggregate(n plan.Node) *plan.Aggregate {
	switch v := n.(type) {
	case *plan.Aggregate:
		return v
	case *plan.Project:
		return findAggregate(v.Source)
	default:
		return nil
	}
}

func TestPlanCreateTableWithForeignKey(t *testing.T) {
	txn := newTestTxn(t)
	createTable(t, txn, usersTable())
	p := New(txn)

	node := parsePlan(t, p, "CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER REFERENCES users(id))")
	ct, ok := node.(*plan.CreateTable)
	if !ok {
		t.Fatalf("got %T", node)
	}
	ref := ct.Table.Columns[1].References
	if ref == nil || ref.Table != "users" || ref.Columns[0] != "id" {
		t.Fatalf("got %+v", ref)
	}
	if !ct.Table.Columns[1].HasSecondaryIndex {
		t.Fatal("expected a foreign key column to get a secondary index")
	}
}

func TestPlanDropTable(t *testing.T) {
	txn := newTestTxn(t)
	p := New(txn)
	node := parsePlan(t, p, "DROP TABLE users")
	drop, ok := node.(*plan.DropTable)
	if !ok || drop.Name != "users" {
		t.Fatalf("got %+v", node)
	}
}

func TestPlanInsertAgainstMissingTableErrors(t *testing.T) {
	txn := newTestTxn(t)
	p := New(txn)
	stmt, err := sql.Parse("INSERT INTO missing VALUES (1)")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Plan(stmt); err == nil {
		t.Fatal("expected an error planning an insert into a nonexistent table")
	}
}
