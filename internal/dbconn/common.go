// Package dbconn implements the three database/sql- and pgx-backed
// adapters spec.md §6's abstract Connection contract requires, selected
// by WorkloadConfig.DBType: SQLite (go-sqlite3), Postgres (lib/pq), and
// Postgres/CockroachDB over pgx (jackc/pgx/v5). None contain benchmark
// logic — they only translate driver-specific transaction control and
// error shapes into the bench.Connection/dbtxn vocabulary the Worker
// understands.
package dbconn

import (
	"context"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dbtxn"
)

// Querier is the narrow SQL-execution surface a Procedure needs beyond
// the transaction-control surface bench.Connection already exposes. A
// benchmark module type-asserts its bench.Connection to Querier to issue
// its actual statements; the Worker never calls it.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) error
	// QueryRow runs query and scans the single resulting row into dest,
	// in column order. It returns sql.ErrNoRows (wrapped) if the query
	// produced no row.
	QueryRow(ctx context.Context, dest []any, query string, args ...any) error
}

// cancelStatement adapts a context.CancelFunc to bench.Statement so
// CancelStatement() has something concrete to call regardless of which
// driver is in use.
type cancelStatement struct {
	cancel context.CancelFunc
}

func (c *cancelStatement) Cancel() error {
	c.cancel()
	return nil
}

// sqlSavepoint is the bench.Savepoint used by every database/sql- and
// pgx-backed adapter: just the name the SQL text used.
type sqlSavepoint struct{ name string }

func (s *sqlSavepoint) Name() string { return s.name }

// isolationClause renders a bench.IsolationLevel as the SQL keyword
// SET TRANSACTION ISOLATION LEVEL expects. Returns "" for
// IsolationDefault, meaning "don't issue the statement."
func isolationClause(level bench.IsolationLevel) string {
	switch level {
	case bench.IsolationReadUncommitted:
		return "READ UNCOMMITTED"
	case bench.IsolationReadCommitted:
		return "READ COMMITTED"
	case bench.IsolationRepeatableRead:
		return "REPEATABLE READ"
	case bench.IsolationSerializable:
		return "SERIALIZABLE"
	default:
		return ""
	}
}

// wrapUnclassified builds a DatabaseError for a driver error this adapter
// does not recognize as carrying an error code or SQLSTATE. The dialect
// classifier treats an empty SQLState as "unknown," per spec.md §7 item 5.
func wrapUnclassified(err error) *dbtxn.DatabaseError {
	return &dbtxn.DatabaseError{Err: err}
}
