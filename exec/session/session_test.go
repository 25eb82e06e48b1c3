package session

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/clstatham/veris/engine"
	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/mvcc"
	"github.com/clstatham/veris/sql"
	"github.com/clstatham/veris/storage"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.log")
	b, err := storage.OpenFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return New(engine.New(mvcc.New(b)))
}

func mustParse(t *testing.T, input string) sql.Statement {
	t.Helper()
	stmt, err := sql.Parse(input)
	if err != nil {
		t.Fatal(err)
	}
	return stmt
}

func TestKindJSONRoundTrip(t *testing.T) {
	for k := range kindNames {
		b, err := json.Marshal(k)
		if err != nil {
			t.Fatal(err)
		}
		var got Kind
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatal(err)
		}
		if got != k {
			t.Fatalf("round trip mismatch: %v -> %s -> %v", k, b, got)
		}
	}
}

func TestKindUnmarshalUnknownNameErrors(t *testing.T) {
	var k Kind
	if err := json.Unmarshal([]byte(`"bogus"`), &k); err == nil {
		t.Fatal("expected an error unmarshaling an unknown kind name")
	}
}

func TestExecImplicitTransactionCommitsOnSuccess(t *testing.T) {
	s := newTestSession(t)
	res, err := s.Exec(mustParse(t, "CREATE TABLE t (id INTEGER PRIMARY KEY)"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != CreateTable {
		t.Fatalf("got %+v", res)
	}

	res, err = s.Exec(mustParse(t, "SHOW TABLES"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tables) != 1 || res.Tables[0].Name != "t" {
		t.Fatalf("expected table to persist after the implicit transaction committed, got %+v", res.Tables)
	}
}

func TestExecImplicitTransactionRollsBackOnError(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Exec(mustParse(t, "INSERT INTO missing VALUES (1)")); err == nil {
		t.Fatal("expected an error inserting into a nonexistent table")
	}

	res, err := s.Exec(mustParse(t, "SHOW TABLES"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tables) != 0 {
		t.Fatalf("expected no tables to have been created, got %+v", res.Tables)
	}
}

func TestExplicitTransactionBeginCommit(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Exec(mustParse(t, "BEGIN")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exec(mustParse(t, "CREATE TABLE t (id INTEGER PRIMARY KEY)")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exec(mustParse(t, "COMMIT")); err != nil {
		t.Fatal(err)
	}

	res, err := s.Exec(mustParse(t, "SHOW TABLES"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tables) != 1 {
		t.Fatalf("expected the table created inside the explicit transaction to persist, got %+v", res.Tables)
	}
}

func TestExplicitTransactionRollbackDiscardsChanges(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Exec(mustParse(t, "BEGIN")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exec(mustParse(t, "CREATE TABLE t (id INTEGER PRIMARY KEY)")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exec(mustParse(t, "ROLLBACK")); err != nil {
		t.Fatal(err)
	}

	res, err := s.Exec(mustParse(t, "SHOW TABLES"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tables) != 0 {
		t.Fatalf("expected the rolled-back table to not exist, got %+v", res.Tables)
	}
}

func TestBeginTwiceErrors(t *testing.T) {
	s := newTestSession(t)
	if err := s.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := s.Begin(); !verrors.Is(err, verrors.AlreadyInTransaction) {
		t.Fatalf("expected AlreadyInTransaction, got %v", err)
	}
}

func TestCommitWithoutTransactionErrors(t *testing.T) {
	s := newTestSession(t)
	if err := s.Commit(); !verrors.Is(err, verrors.NotInTransaction) {
		t.Fatalf("expected NotInTransaction, got %v", err)
	}
}

func TestRollbackWithoutTransactionErrors(t *testing.T) {
	s := newTestSession(t)
	if err := s.Rollback(); !verrors.Is(err, verrors.NotInTransaction) {
		t.Fatalf("expected NotInTransaction, got %v", err)
	}
}

func TestResultStrings(t *testing.T) {
	cases := []struct {
		result Result
		want   string
	}{
		{Result{Kind: Begin}, "Transaction started"},
		{Result{Kind: Commit}, "Transaction committed"},
		{Result{Kind: Rollback}, "Transaction rolled back"},
		{Result{Kind: CreateTable, TableName: "t"}, "Created table t"},
		{Result{Kind: DropTable, TableName: "t"}, "Dropped table t"},
		{Result{Kind: Delete, RowCount: 3}, "Deleted 3 rows"},
		{Result{Kind: Insert, RowCount: 2}, "Inserted 2 rows"},
		{Result{Kind: Query}, "Query ran"},
		{ErrorResult(verrors.New(verrors.TableDoesNotExist, "t")), "Error: t"},
	}
	for _, c := range cases {
		if got := c.result.String(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}
