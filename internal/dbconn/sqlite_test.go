package dbconn

import (
	"context"
	"testing"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dbtxn"
)

func TestSQLiteConn_SavepointCommitRollback(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	if err := conn.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if err := conn.SetAutoCommit(ctx, false); err != nil {
		t.Fatalf("SetAutoCommit(false): %v", err)
	}
	if conn.AutoCommit() {
		t.Fatal("AutoCommit still true after disabling")
	}

	sp, err := conn.SetSavepoint(ctx, "")
	if err != nil {
		t.Fatalf("SetSavepoint: %v", err)
	}
	if err := conn.Exec(ctx, "INSERT INTO t (id, v) VALUES (1, 'a')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := conn.RollbackToSavepoint(ctx, sp); err != nil {
		t.Fatalf("RollbackToSavepoint: %v", err)
	}

	sp2, err := conn.SetSavepoint(ctx, "")
	if err != nil {
		t.Fatalf("SetSavepoint #2: %v", err)
	}
	if err := conn.Exec(ctx, "INSERT INTO t (id, v) VALUES (1, 'b')"); err != nil {
		t.Fatalf("insert #2: %v", err)
	}
	if err := conn.ReleaseSavepoint(ctx, sp2); err != nil {
		t.Fatalf("ReleaseSavepoint: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := conn.SetAutoCommit(ctx, true); err != nil {
		t.Fatalf("SetAutoCommit(true): %v", err)
	}

	var v string
	if err := conn.QueryRow(ctx, []any{&v}, "SELECT v FROM t WHERE id = 1"); err != nil {
		t.Fatalf("QueryRow: %v", err)
	}
	if v != "b" {
		t.Errorf("v = %q, want %q (rolled-back insert must not have survived)", v, "b")
	}
}

func TestSQLiteConn_DuplicateKeyIsClassifiable(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	if err := conn.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := conn.SetAutoCommit(ctx, false); err != nil {
		t.Fatalf("SetAutoCommit: %v", err)
	}
	if err := conn.Exec(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err = conn.Exec(ctx, "INSERT INTO t (id) VALUES (1)")
	if err == nil {
		t.Fatal("expected duplicate-key error")
	}
	if _, ok := dbtxn.AsDatabaseError(err); !ok {
		t.Fatalf("error is not a classifiable DatabaseError: %v", err)
	}
}

func TestSQLiteConn_CancelStatement(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer conn.Close()

	var stmt bench.Statement = &cancelStatement{cancel: func() {}}
	conn.SetCurrStatement(stmt)
	if err := conn.CancelStatement(); err != nil {
		t.Fatalf("CancelStatement: %v", err)
	}
}
