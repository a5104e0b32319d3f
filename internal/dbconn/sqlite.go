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
	"github.com/mattn/go-sqlite3"
)

// SQLiteConn implements bench.Connection and Querier over a single
// database/sql transaction backed by go-sqlite3. SQLite has no SQLSTATE
// concept, so every DatabaseError it produces carries the driver's
// numeric result code as ErrorCode and an empty SQLState, which the
// dialect classifier treats as unclassified (spec.md §7 item 5) — this
// adapter exists to exercise the retry/savepoint loop cheaply in tests,
// not to model SQLite's own concurrency semantics faithfully.
type SQLiteConn struct {
	db *sql.DB
	tx *sql.Tx

	mu         sync.Mutex
	autoCommit bool
	curr       bench.Statement
	spCounter  atomic.Int64
}

// OpenSQLite opens (creating if necessary) a SQLite database at path and
// wraps it as a SQLiteConn. path may be ":memory:" for ephemeral tests.
func OpenSQLite(path string) (*SQLiteConn, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("dbconn: opening sqlite database: %w", err)
	}
	return &SQLiteConn{db: db, autoCommit: true}, nil
}

func (c *SQLiteConn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

func (c *SQLiteConn) SetAutoCommit(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled == c.autoCommit {
		return nil
	}
	if !enabled {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbconn: beginning sqlite transaction: %w", err)
		}
		c.tx = tx
	}
	c.autoCommit = enabled
	return nil
}

func (c *SQLiteConn) SetTransactionIsolation(ctx context.Context, level bench.IsolationLevel) error {
	// SQLite has no statement-level isolation clause; BeginTx already
	// serializes writers. Nothing to do.
	return nil
}

func (c *SQLiteConn) SetSavepoint(ctx context.Context, name string) (bench.Savepoint, error) {
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

func (c *SQLiteConn) ReleaseSavepoint(ctx context.Context, sp bench.Savepoint) error {
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

func (c *SQLiteConn) RollbackToSavepoint(ctx context.Context, sp bench.Savepoint) error {
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

func (c *SQLiteConn) Rollback(ctx context.Context) error {
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

func (c *SQLiteConn) Commit(ctx context.Context) error {
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

func (c *SQLiteConn) SetCurrStatement(stmt bench.Statement) {
	c.mu.Lock()
	c.curr = stmt
	c.mu.Unlock()
}

func (c *SQLiteConn) CancelStatement() error {
	c.mu.Lock()
	stmt := c.curr
	c.mu.Unlock()
	if stmt == nil {
		return nil
	}
	return stmt.Cancel()
}

func (c *SQLiteConn) Close() error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx != nil {
		_ = tx.Rollback()
	}
	return c.db.Close()
}

// Exec implements Querier using the adapter's current transaction, with
// statement-cancellation support wired through SetCurrStatement.
func (c *SQLiteConn) Exec(ctx context.Context, query string, args ...any) error {
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

func (c *SQLiteConn) QueryRow(ctx context.Context, dest []any, query string, args ...any) error {
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

// classify extracts go-sqlite3's numeric result code, if present, as the
// DatabaseError's ErrorCode. SQLite never produces a SQLSTATE.
func (c *SQLiteConn) classify(err error) *dbtxn.DatabaseError {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return &dbtxn.DatabaseError{ErrorCode: int(sqliteErr.Code), Err: err}
	}
	return wrapUnclassified(err)
}
