package dbconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dbtxn"
)

// PgxConn implements bench.Connection and Querier over jackc/pgx/v5. It
// serves both plain Postgres and CockroachDB; the caller selects the
// CockroachDB restart-savepoint convention ("cockroach_restart", per
// spec.md §4.6.1(a)) with cockroachSavepoints.
type PgxConn struct {
	conn *pgx.Conn
	tx   pgx.Tx

	cockroachSavepoints bool

	mu         sync.Mutex
	autoCommit bool
	curr       bench.Statement
	spCounter  atomic.Int64
}

// OpenPgx connects to connString with pgx. cockroach selects the
// "cockroach_restart" named-savepoint convention instead of lib/pq-style
// unnamed savepoints.
func OpenPgx(ctx context.Context, connString string, cockroach bool) (*PgxConn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("dbconn: connecting via pgx: %w", err)
	}
	return &PgxConn{conn: conn, cockroachSavepoints: cockroach, autoCommit: true}, nil
}

func (c *PgxConn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

func (c *PgxConn) SetAutoCommit(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled == c.autoCommit {
		return nil
	}
	if !enabled {
		tx, err := c.conn.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("dbconn: beginning pgx transaction: %w", err)
		}
		c.tx = tx
	}
	c.autoCommit = enabled
	return nil
}

func (c *PgxConn) SetTransactionIsolation(ctx context.Context, level bench.IsolationLevel) error {
	clause := isolationClause(level)
	if clause == "" {
		return nil
	}
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil {
		return nil
	}
	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL "+clause); err != nil {
		return c.classify(err)
	}
	return nil
}

// savepointName picks the dialect's naming convention: CockroachDB's
// fixed "cockroach_restart" marker, reused on every attempt, versus
// Postgres's ordinary per-attempt unnamed-in-spirit savepoint.
func (c *PgxConn) savepointName(requested string) string {
	if c.cockroachSavepoints {
		return "cockroach_restart"
	}
	if requested != "" {
		return requested
	}
	return fmt.Sprintf("sp%d", c.spCounter.Add(1))
}

func (c *PgxConn) SetSavepoint(ctx context.Context, name string) (bench.Savepoint, error) {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil {
		return nil, fmt.Errorf("dbconn: SetSavepoint called outside a transaction")
	}
	spName := c.savepointName(name)
	if _, err := tx.Exec(ctx, "SAVEPOINT "+spName); err != nil {
		return nil, c.classify(err)
	}
	return &sqlSavepoint{name: spName}, nil
}

func (c *PgxConn) ReleaseSavepoint(ctx context.Context, sp bench.Savepoint) error {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil || sp == nil {
		return nil
	}
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp.Name()); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PgxConn) RollbackToSavepoint(ctx context.Context, sp bench.Savepoint) error {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil || sp == nil {
		return nil
	}
	if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp.Name()); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PgxConn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return c.classify(err)
	}
	return nil
}

func (c *PgxConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PgxConn) SetCurrStatement(stmt bench.Statement) {
	c.mu.Lock()
	c.curr = stmt
	c.mu.Unlock()
}

func (c *PgxConn) CancelStatement() error {
	c.mu.Lock()
	stmt := c.curr
	c.mu.Unlock()
	if stmt == nil {
		return nil
	}
	return stmt.Cancel()
}

func (c *PgxConn) Close() error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx != nil {
		_ = tx.Rollback(context.Background())
	}
	return c.conn.Close(context.Background())
}

func (c *PgxConn) Exec(ctx context.Context, query string, args ...any) error {
	execCtx, cancel := context.WithCancel(ctx)
	c.SetCurrStatement(&cancelStatement{cancel: cancel})
	defer cancel()

	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	var err error
	if tx != nil {
		_, err = tx.Exec(execCtx, query, args...)
	} else {
		_, err = c.conn.Exec(execCtx, query, args...)
	}
	if err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PgxConn) QueryRow(ctx context.Context, dest []any, query string, args ...any) error {
	queryCtx, cancel := context.WithCancel(ctx)
	c.SetCurrStatement(&cancelStatement{cancel: cancel})
	defer cancel()

	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(queryCtx, query, args...)
	} else {
		row = c.conn.QueryRow(queryCtx, query, args...)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return c.classify(err)
	}
	return nil
}

// classify extracts pgconn's SQLSTATE, the same code space lib/pq
// exposes, so CockroachDB (pgwire-compatible) errors classify through
// the same dialect table rows as plain Postgres.
func (c *PgxConn) classify(err error) *dbtxn.DatabaseError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &dbtxn.DatabaseError{SQLState: pgErr.Code, Err: err}
	}
	return wrapUnclassified(err)
}
