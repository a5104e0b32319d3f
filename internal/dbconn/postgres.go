package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dbtxn"
	"github.com/lib/pq"
)

// PostgresConn implements bench.Connection and Querier over
// database/sql using lib/pq. It uses unnamed savepoints ("SAVEPOINT
// spN"), the convention spec.md §4.6.1(a) assigns to plain Postgres (as
// opposed to CockroachDB's named "cockroach_restart" savepoint, handled
// by PgxConn).
type PostgresConn struct {
	db *sql.DB
	tx *sql.Tx

	mu         sync.Mutex
	autoCommit bool
	curr       bench.Statement
	spCounter  atomic.Int64
}

// OpenPostgres opens a lib/pq connection pool against dsn.
func OpenPostgres(dsn string) (*PostgresConn, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbconn: opening postgres database: %w", err)
	}
	return &PostgresConn{db: db, autoCommit: true}, nil
}

func (c *PostgresConn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

func (c *PostgresConn) SetAutoCommit(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled == c.autoCommit {
		return nil
	}
	if !enabled {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbconn: beginning postgres transaction: %w", err)
		}
		c.tx = tx
	}
	c.autoCommit = enabled
	return nil
}

func (c *PostgresConn) SetTransactionIsolation(ctx context.Context, level bench.IsolationLevel) error {
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
	if _, err := tx.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL "+clause); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PostgresConn) SetSavepoint(ctx context.Context, name string) (bench.Savepoint, error) {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil {
		return nil, fmt.Errorf("dbconn: SetSavepoint called outside a transaction")
	}
	if name == "" {
		name = fmt.Sprintf("sp%d", c.spCounter.Add(1))
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, c.classify(err)
	}
	return &sqlSavepoint{name: name}, nil
}

func (c *PostgresConn) ReleaseSavepoint(ctx context.Context, sp bench.Savepoint) error {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil || sp == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp.Name()); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PostgresConn) RollbackToSavepoint(ctx context.Context, sp bench.Savepoint) error {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil || sp == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp.Name()); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PostgresConn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return c.classify(err)
	}
	return nil
}

func (c *PostgresConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PostgresConn) SetCurrStatement(stmt bench.Statement) {
	c.mu.Lock()
	c.curr = stmt
	c.mu.Unlock()
}

func (c *PostgresConn) CancelStatement() error {
	c.mu.Lock()
	stmt := c.curr
	c.mu.Unlock()
	if stmt == nil {
		return nil
	}
	return stmt.Cancel()
}

func (c *PostgresConn) Close() error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx != nil {
		_ = tx.Rollback()
	}
	return c.db.Close()
}

func (c *PostgresConn) Exec(ctx context.Context, query string, args ...any) error {
	execCtx, cancel := context.WithCancel(ctx)
	c.SetCurrStatement(&cancelStatement{cancel: cancel})
	defer cancel()

	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	var err error
	if tx != nil {
		_, err = tx.ExecContext(execCtx, query, args...)
	} else {
		_, err = c.db.ExecContext(execCtx, query, args...)
	}
	if err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *PostgresConn) QueryRow(ctx context.Context, dest []any, query string, args ...any) error {
	queryCtx, cancel := context.WithCancel(ctx)
	c.SetCurrStatement(&cancelStatement{cancel: cancel})
	defer cancel()

	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(queryCtx, query, args...)
	} else {
		row = c.db.QueryRowContext(queryCtx, query, args...)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return c.classify(err)
	}
	return nil
}

// classify extracts lib/pq's SQLSTATE as the DatabaseError's SQLState,
// matching the dialect table's Postgres rows (ErrorCode always 0).
func (c *PostgresConn) classify(err error) *dbtxn.DatabaseError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &dbtxn.DatabaseError{SQLState: string(pqErr.Code), Err: err}
	}
	return wrapUnclassified(err)
}
