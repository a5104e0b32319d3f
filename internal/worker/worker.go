// Package worker implements the Worker (C6): the per-thread loop that
// fetches work from the Workload State Machine, executes it with
// retry/savepoint/cancel discipline tuned per DBMS dialect, and records
// outcome histograms and phase-gated latency samples.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/catalog"
	"github.com/jpequegn/txnbench/internal/dialect"
	"github.com/jpequegn/txnbench/internal/txmodel"
	"github.com/jpequegn/txnbench/internal/workload"
)

// MaxRetryCount bounds the number of same-transaction retries before the
// worker gives up and moves on to the next work item (spec.md §4.6.1).
const MaxRetryCount = 3

// Config configures one Worker.
type Config struct {
	ID                  int
	DBType              dialect.DBType
	Isolation           bench.IsolationLevel
	RecordAbortMessages bool
	Logger              *slog.Logger
	// NowNs returns the current time as nanoseconds since an arbitrary
	// epoch; overridable in tests for deterministic timestamps.
	NowNs func() int64
}

// Worker is the per-thread execution context described in spec.md §4.6.
// One Worker corresponds to one persistent OS-thread-equivalent
// goroutine, not a task-per-transaction.
type Worker struct {
	cfg     Config
	sm      *workload.StateMachine
	cat     *catalog.Catalog
	module  bench.Module
	Stats   *Stats

	seenDone bool

	mu       sync.Mutex
	currConn bench.Connection
}

// New constructs a Worker bound to a shared StateMachine, Catalog, and
// benchmark Module.
func New(cfg Config, sm *workload.StateMachine, cat *catalog.Catalog, module bench.Module) *Worker {
	if cfg.NowNs == nil {
		cfg.NowNs = func() int64 { return time.Now().UnixNano() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		cfg:    cfg,
		sm:     sm,
		cat:    cat,
		module: module,
		Stats:  NewStats(1024),
	}
}

// ID returns the worker's configured identifier.
func (w *Worker) ID() int { return w.cfg.ID }

// setCurrConn records the connection currently bound to this worker's
// in-flight attempt, so a concurrently-running CancelStatement call has
// something to cancel. Safe for concurrent use.
func (w *Worker) setCurrConn(conn bench.Connection) {
	w.mu.Lock()
	w.currConn = conn
	w.mu.Unlock()
}

// CancelStatement cancels whatever statement is currently executing on
// this worker's active connection, if any. The Driver calls this when
// advancing the run's phase/state (spec.md §5); it typically surfaces to
// the worker as a dialect-specific "cancelled" SQLSTATE.
func (w *Worker) CancelStatement() error {
	w.mu.Lock()
	conn := w.currConn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.CancelStatement()
}

// Run executes the worker loop described in spec.md §4.6 until the
// global state reaches DONE or a fatal error propagates. It blocks at
// the start barrier before doing anything else.
func (w *Worker) Run(ctx context.Context) error {
	w.sm.BlockForStart()

	for {
		state := w.sm.GlobalState()
		if state == txmodel.Done && !w.seenDone {
			w.seenDone = true
			w.sm.SignalDone()
			return nil
		}

		w.sm.StayAwake()

		phase := w.sm.CurrentPhase()
		if phase == nil {
			// Design note (spec.md §9): when the phase goes nil between
			// StayAwake and FetchWork, loop without calling
			// FinishedWork(); the state machine does not require a
			// paired finish in this path.
			continue
		}

		work, fetchStatus := w.sm.FetchWork(w.cfg.NowNs)
		if fetchStatus == workload.FetchEndOfPhase {
			if !phase.IsLatencyRun() {
				// A throughput fetch ends this way when its phase is torn
				// down or the run reaches DONE; there is no serial list to
				// handle, so loop back and re-check state.
				continue
			}
			// Re-read state here rather than reusing the value captured
			// before StayAwake: the phase may have advanced while this
			// worker was blocked, and routing on a stale state would
			// misclassify the WARMUP case as a latency-complete signal
			// (or vice versa).
			if err := w.handleEndOfPhase(phase, w.sm.GlobalState()); err != nil {
				return err
			}
			continue
		}

		preState := w.sm.GlobalState()
		curPhase := w.sm.CurrentPhase()
		if curPhase == nil {
			continue
		}
		if preState == txmodel.Done || preState == txmodel.Exit || preState == txmodel.LatencyComplete {
			continue
		}

		startNs := work.StartTimeNs
		typ, err := w.doWork(ctx, preState == txmodel.Measure, work)
		if err != nil {
			return err
		}
		endNs := w.cfg.NowNs()

		postState := w.sm.GlobalState()
		postPhase := w.sm.CurrentPhase()

		validMeasurement := postState == txmodel.Measure &&
			preState == txmodel.Measure &&
			typ != nil &&
			postPhase != nil &&
			postPhase.ID == curPhase.ID

		if validMeasurement {
			w.Stats.Recorder.Append(typ.ID, startNs, endNs, w.cfg.ID, curPhase.ID)
			w.Stats.recordInterval()
			if curPhase.IsLatencyRun() {
				w.sm.StartColdQuery()
			}
		}
		if postState == txmodel.ColdQuery && preState == txmodel.ColdQuery {
			w.sm.StartHotQuery()
		}

		w.sm.FinishedWork()
	}
}

// handleEndOfPhase implements the end-of-serial-phase handling in
// spec.md §4.6: in WARMUP it does nothing — the serial cursor is not
// reset, so a WARMUP serial phase does not wrap and FetchWork keeps
// reporting FetchEndOfPhase until the Driver installs another phase;
// COLD_QUERY or MEASURE signals latency-complete and drops the result;
// any other state is fatal.
func (w *Worker) handleEndOfPhase(phase *txmodel.Phase, state txmodel.GlobalState) error {
	switch state {
	case txmodel.Warmup:
		return nil
	case txmodel.ColdQuery, txmodel.Measure:
		w.sm.SignalLatencyComplete()
		return nil
	default:
		return &FatalError{WorkerID: w.cfg.ID, Reason: "end-of-serial-phase observed in unexpected state " + state.String()}
	}
}

// FatalError is returned by Run when the worker must terminate the run,
// per spec.md §7's worker-fatal propagation policy.
type FatalError struct {
	WorkerID int
	Reason   string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("worker %d fatal: %s", e.WorkerID, e.Reason)
}
