package safedb_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/leonletto/carlot/internal/daemon/safedb"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *safedb.DB {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// :memory: is per-connection.
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })
	_, err = raw.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatal(err)
	}
	return safedb.New(raw)
}

func countRows(t *testing.T, q safedb.Querier) int {
	t.Helper()
	var n int
	if err := q.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM test").Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestQueryContext(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "INSERT INTO test (name) VALUES (?)", "alice")
	if err != nil {
		t.Fatal(err)
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM test WHERE id = ?", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		t.Fatal("expected a row")
	}
	var name string
	if err := rows.Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "alice" {
		t.Fatalf("got %q, want %q", name, "alice")
	}
}

func TestCancelledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := db.ExecContext(ctx, "INSERT INTO test (name) VALUES (?)", "late"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestWithTxCommits(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *safedb.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO test (name) VALUES (?)", "a"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO test (name) VALUES (?)", "b")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if n := countRows(t, db); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("stop")

	err := db.WithTx(ctx, func(tx *safedb.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO test (name) VALUES (?)", "a"); err != nil {
			return err
		}
		if n := countRows(t, tx); n != 1 {
			t.Errorf("rows inside tx = %d, want 1", n)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want sentinel", err)
	}
	if n := countRows(t, db); n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}
}
