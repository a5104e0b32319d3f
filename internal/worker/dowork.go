package worker

import (
	"context"
	"fmt"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dbtxn"
	"github.com/jpequegn/txnbench/internal/dialect"
	"github.com/jpequegn/txnbench/internal/txmodel"
)

// usesTransactions reports whether dbType requires isolation-level
// configuration and savepoint/commit discipline. Every dialect this
// package knows about does; the distinction exists so a future
// non-transactional adapter (e.g. a columnar analytics store queried
// read-only) has somewhere to opt out without touching the retry loop.
func usesTransactions(dbType dialect.DBType) bool {
	return dbType != dialect.Unknown
}

// doWork implements spec.md §4.6.1: acquire a connection, run the
// retry/savepoint loop against the benchmark's executeWork, and return
// the TransactionType actually executed. It returns nil for every
// outcome other than a committed SUCCESS: RETRY_DIFFERENT, exhausted
// retries, a user abort, or a non-success status from executeWork.
func (w *Worker) doWork(ctx context.Context, measure bool, work txmodel.SubmittedProcedure) (*txmodel.TransactionType, error) {
	typ, rawProc, err := w.cat.ByID(work.TypeID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown transaction type id %d in workload mix", dbtxn.ErrProgramming, work.TypeID)
	}
	proc, ok := rawProc.(bench.Procedure)
	if !ok {
		return nil, fmt.Errorf("%w: procedure %q does not implement executeWork", dbtxn.ErrProgramming, typ.Name)
	}

	conn, err := w.module.GetConnection(ctx)
	if err != nil {
		return nil, dbtxn.ConnectionError(w.cfg.ID, w.cfg.DBType.String(), typ.Name, err)
	}
	w.setCurrConn(conn)
	defer func() {
		w.setCurrConn(nil)
		_ = conn.Close()
	}()

	if conn.AutoCommit() {
		w.cfg.Logger.Warn("connection arrived with auto-commit already enabled", "worker", w.cfg.ID)
	}
	if err := conn.SetAutoCommit(ctx, false); err != nil {
		return nil, fmt.Errorf("%w: disabling auto-commit: %v", dbtxn.ErrFatalDatabase, err)
	}

	if usesTransactions(w.cfg.DBType) {
		if err := conn.SetTransactionIsolation(ctx, w.cfg.Isolation); err != nil {
			return nil, fmt.Errorf("%w: setting isolation level: %v", dbtxn.ErrFatalDatabase, err)
		}
	}

	status := txmodel.StatusRetry
	retryCount := 0
	var resultType *txmodel.TransactionType

	for status == txmodel.StatusRetry && w.sm.GlobalState() != txmodel.Done {
		sp, err := w.createSavepoint(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("%w: creating savepoint: %v", dbtxn.ErrFatalDatabase, err)
		}

		deps := bench.Dependencies{Catalog: w.cat, RNG: w.module.RNG()}
		execStatus, execErr := proc.Execute(ctx, conn, typ, deps)

		if execErr == nil {
			if sp != nil {
				if err := conn.ReleaseSavepoint(ctx, sp); err != nil {
					return nil, fmt.Errorf("%w: releasing savepoint: %v", dbtxn.ErrFatalDatabase, err)
				}
			}
			if err := conn.Commit(ctx); err != nil {
				return nil, fmt.Errorf("%w: commit: %v", dbtxn.ErrFatalDatabase, err)
			}
			status = execStatus
			if status == txmodel.StatusSuccess {
				w.Stats.Success.Add(typ.ID)
				t := typ
				resultType = &t
			}
			break
		}

		if ua, ok := dbtxn.AsUserAbort(execErr); ok {
			w.handleUserAbort(ctx, conn, sp, typ, ua)
			status = txmodel.StatusUserAborted
			break
		}

		if de, ok := dbtxn.AsDatabaseError(execErr); ok {
			var fatalErr error
			status, retryCount, fatalErr = w.handleDatabaseError(ctx, conn, sp, typ, de, retryCount)
			if fatalErr != nil {
				return nil, fatalErr
			}
			continue
		}

		// Fatal non-database error: rethrow unwrapped, abort the worker.
		return nil, execErr
	}

	if conn.AutoCommit() {
		w.cfg.Logger.Warn("connection auto-commit unexpectedly re-enabled mid-transaction", "worker", w.cfg.ID)
	}
	if err := conn.SetAutoCommit(ctx, true); err != nil {
		return nil, fmt.Errorf("%w: re-enabling auto-commit: %v", dbtxn.ErrFatalDatabase, err)
	}

	if status != txmodel.StatusSuccess {
		return nil, nil
	}
	return resultType, nil
}

// createSavepoint applies the per-dialect savepoint policy in spec.md
// §4.6.1(a): unnamed for Postgres, "cockroach_restart" for CockroachDB,
// none otherwise.
func (w *Worker) createSavepoint(ctx context.Context, conn bench.Connection) (bench.Savepoint, error) {
	switch w.cfg.DBType {
	case dialect.Postgres:
		return conn.SetSavepoint(ctx, "")
	case dialect.CockroachDB:
		return conn.SetSavepoint(ctx, "cockroach_restart")
	default:
		return nil, nil
	}
}

func (w *Worker) handleUserAbort(ctx context.Context, conn bench.Connection, sp bench.Savepoint, typ txmodel.TransactionType, ua *dbtxn.UserAbort) {
	if w.cfg.RecordAbortMessages {
		w.Stats.AbortMessages.Record(typ.ID, ua.Message)
	}
	if sp != nil {
		_ = conn.RollbackToSavepoint(ctx, sp)
	} else {
		_ = conn.Rollback(ctx)
	}
	w.Stats.Abort.Add(typ.ID)
}

// handleDatabaseError implements spec.md §4.6.1(e): increments
// txnErrors, rolls back (to the savepoint when one exists), classifies
// the error, and returns the status to assign after this attempt plus
// the updated retryCount. A non-nil error return means the
// classification was FATAL: the caller must propagate it unwrapped and
// abort the worker, per spec.md §7 category 4.
func (w *Worker) handleDatabaseError(ctx context.Context, conn bench.Connection, sp bench.Savepoint, typ txmodel.TransactionType, de *dbtxn.DatabaseError, retryCount int) (txmodel.TransactionStatus, int, error) {
	w.Stats.Errors.Add(typ.ID)
	if sp != nil {
		_ = conn.RollbackToSavepoint(ctx, sp)
	} else {
		_ = conn.Rollback(ctx)
	}

	action := dialect.ClassifyLogged(w.cfg.Logger, w.cfg.DBType, de.ErrorCode, de.SQLState)
	switch action {
	case dialect.RetryDifferent:
		w.Stats.Retry.Add(typ.ID)
		return txmodel.StatusRetryDifferent, retryCount, nil
	case dialect.Retry, dialect.UnknownRetry:
		w.Stats.Retry.Add(typ.ID)
		retryCount++
		if retryCount >= MaxRetryCount {
			w.cfg.Logger.Warn("retry count exceeded, abandoning transaction",
				"worker", w.cfg.ID, "txn", typ.Name, "retries", retryCount)
			return txmodel.StatusError, retryCount, nil
		}
		return txmodel.StatusRetry, retryCount, nil
	default: // dialect.Fatal
		return txmodel.StatusError, retryCount, fmt.Errorf("%w: dbType=%s code=%d sqlstate=%s txn=%s: %v",
			dbtxn.ErrFatalDatabase, w.cfg.DBType, de.ErrorCode, de.SQLState, typ.Name, de.Err)
	}
}
