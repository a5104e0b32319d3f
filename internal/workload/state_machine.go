// Package workload implements the Workload State Machine (C5): the
// global phase controller and work dispatcher shared by all workers and
// the driver. It owns no transaction-execution logic — only phase/state
// bookkeeping and work-item generation.
package workload

import (
	"sync"
	"time"

	"github.com/jpequegn/txnbench/internal/txmodel"
)

// FetchStatus is the sentinel result of fetchWork, replacing the
// index-out-of-range exception the original harness used to signal
// end-of-serial-phase (spec.md §9 design note).
type FetchStatus int

const (
	// FetchOK means Work is a valid SubmittedProcedure.
	FetchOK FetchStatus = iota
	// FetchEndOfPhase means the active phase's serial query list has been
	// exhausted; Work is the zero value and must not be dispatched.
	FetchEndOfPhase
)

// StateMachine is the shared, internally-synchronized controller
// described in spec.md §4.5. All exported methods are safe for
// concurrent use by any number of workers plus one driver.
type StateMachine struct {
	mu   sync.Mutex
	cond *sync.Cond

	startCh chan struct{}
	started bool

	state      txmodel.GlobalState
	phase      *txmodel.Phase
	doneLatch  bool // once Done is observed it is persistent, per spec.md §4.5(ii)

	mix *Mix

	// Serial (LATENCY-phase) dispatch state.
	queryList    []int
	serialCursor int

	// Throughput dispatch state: a background producer feeds workCh at
	// the phase's target rate; fetchWork for a THROUGHPUT phase simply
	// drains it.
	workCh       chan txmodel.SubmittedProcedure
	producerStop chan struct{}
	producerDone chan struct{}

	doneCh       chan struct{}
	doneChClosed bool

	totalFinished int64
}

// markDone closes doneCh exactly once, unblocking any fetchWork call
// parked on the throughput channel. Callers must hold sm.mu.
func (sm *StateMachine) markDone() {
	sm.doneLatch = true
	if !sm.doneChClosed {
		sm.doneChClosed = true
		close(sm.doneCh)
	}
}

// New returns a StateMachine with no active phase, in WARMUP state,
// blocked at the start barrier.
func New(mix *Mix) *StateMachine {
	sm := &StateMachine{
		startCh: make(chan struct{}),
		state:   txmodel.Warmup,
		mix:     mix,
		doneCh:  make(chan struct{}),
	}
	sm.cond = sync.NewCond(&sm.mu)
	return sm
}

// ArmStart releases every worker blocked in blockForStart. Called once by
// the Driver after all workers have been constructed.
func (sm *StateMachine) ArmStart() {
	sm.mu.Lock()
	if !sm.started {
		sm.started = true
		close(sm.startCh)
	}
	sm.mu.Unlock()
}

// BlockForStart blocks until ArmStart has been called. No worker
// proceeds past this call before the Driver has armed all workers.
func (sm *StateMachine) BlockForStart() {
	<-sm.startCh
}

// StayAwake blocks until there is work to do or the phase changes. It
// returns without any guarantee that work is actually available —
// callers must re-check currentPhase()/fetchWork() themselves.
func (sm *StateMachine) StayAwake() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state == txmodel.Done || sm.phase != nil {
		return
	}
	sm.cond.Wait()
}

// CurrentPhase returns a snapshot of the active Phase, or nil if no
// phase is currently active.
func (sm *StateMachine) CurrentPhase() *txmodel.Phase {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.phase == nil {
		return nil
	}
	p := *sm.phase
	return &p
}

// GlobalState returns a snapshot of the current run-wide state.
func (sm *StateMachine) GlobalState() txmodel.GlobalState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// FetchWork returns the next unit of work, stamped with the submission
// (not fetch) timestamp, or FetchEndOfPhase if the active phase is a
// serial list that has been exhausted. FetchWork is safe under
// concurrent callers: it never hands the same work item to two callers.
func (sm *StateMachine) FetchWork(nowNs func() int64) (txmodel.SubmittedProcedure, FetchStatus) {
	sm.mu.Lock()
	phase := sm.phase
	if phase != nil && phase.Kind == txmodel.Latency {
		if sm.serialCursor >= len(sm.queryList) {
			sm.mu.Unlock()
			return txmodel.SubmittedProcedure{}, FetchEndOfPhase
		}
		typeID := sm.queryList[sm.serialCursor]
		sm.serialCursor++
		sm.mu.Unlock()
		return txmodel.SubmittedProcedure{TypeID: typeID, StartTimeNs: nowNs()}, FetchOK
	}
	workCh := sm.workCh
	doneCh := sm.doneCh
	sm.mu.Unlock()

	if workCh == nil {
		// No throughput producer running (between phases); behave like an
		// exhausted phase so the worker loops back around to re-check
		// state rather than blocking on a nil channel forever.
		return txmodel.SubmittedProcedure{}, FetchEndOfPhase
	}
	select {
	case work, ok := <-workCh:
		if !ok {
			return txmodel.SubmittedProcedure{}, FetchEndOfPhase
		}
		return work, FetchOK
	case <-doneCh:
		return txmodel.SubmittedProcedure{}, FetchEndOfPhase
	}
}

// FinishedWork signals that one work item completed, for rate-control
// accounting. It is called at the end of every worker loop iteration
// that executed a fetched work item, regardless of whether the
// iteration produced a measured sample. An iteration that drops its
// fetched item because the phase went nil or the state is DONE, EXIT or
// LATENCY_COMPLETE does not call it.
func (sm *StateMachine) FinishedWork() {
	sm.mu.Lock()
	sm.totalFinished++
	sm.mu.Unlock()
}

// TotalFinished returns the cumulative number of FinishedWork calls
// observed so far. It is monotonic and never reset.
func (sm *StateMachine) TotalFinished() int64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.totalFinished
}

// --- Driver-invoked phase/state advancement ---

// SetPhase installs a new active phase (or nil to go phase-less) and
// (re)starts the serial cursor / throughput producer accordingly. Called
// by the Driver according to the external schedule.
func (sm *StateMachine) SetPhase(phase *txmodel.Phase, queryList []int) {
	sm.stopProducer()

	sm.mu.Lock()
	sm.phase = phase
	sm.queryList = queryList
	sm.serialCursor = 0
	var startThroughput bool
	if phase != nil && phase.Kind == txmodel.Throughput {
		sm.workCh = make(chan txmodel.SubmittedProcedure, 64)
		sm.producerStop = make(chan struct{})
		sm.producerDone = make(chan struct{})
		startThroughput = true
	} else {
		sm.workCh = nil
		sm.producerStop = nil
		sm.producerDone = nil
	}
	sm.cond.Broadcast()
	sm.mu.Unlock()

	if startThroughput {
		go sm.runThroughputProducer(phase.Rate, sm.workCh, sm.producerStop, sm.producerDone)
	}
}

func (sm *StateMachine) stopProducer() {
	sm.mu.Lock()
	stop := sm.producerStop
	done := sm.producerDone
	sm.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (sm *StateMachine) runThroughputProducer(rate float64, workCh chan txmodel.SubmittedProcedure, stop, done chan struct{}) {
	defer close(done)
	// The producer is the channel's only sender; closing it on exit lets
	// a FetchWork parked on it report FetchEndOfPhase after a phase change.
	defer close(workCh)
	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}
	var ticker *time.Ticker
	var tickCh <-chan time.Time
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
		tickCh = ticker.C
	}
	for {
		if tickCh != nil {
			select {
			case <-stop:
				return
			case <-tickCh:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		item := txmodel.SubmittedProcedure{TypeID: sm.mix.Pick(), StartTimeNs: time.Now().UnixNano()}
		select {
		case workCh <- item:
		case <-stop:
			return
		}
	}
}

// setState performs a monotonic compare-and-advance: it only applies
// newState if the machine is currently in fromState, so concurrent
// callers racing the same transition apply it exactly once.
func (sm *StateMachine) setState(fromState, newState txmodel.GlobalState) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != fromState {
		return false
	}
	sm.state = newState
	if newState == txmodel.Done {
		sm.markDone()
	}
	sm.cond.Broadcast()
	return true
}

// ForceState unconditionally sets the global state, used by the Driver
// to advance the schedule (e.g. WARMUP -> MEASURE) independent of any
// worker-observed transition.
func (sm *StateMachine) ForceState(newState txmodel.GlobalState) {
	sm.mu.Lock()
	if sm.doneLatch {
		// DONE is terminal: nothing moves the machine out of it.
		sm.mu.Unlock()
		return
	}
	sm.state = newState
	if newState == txmodel.Done {
		sm.markDone()
	}
	sm.cond.Broadcast()
	sm.mu.Unlock()
}

// SignalDone advances to DONE. Once observed, DONE is persistent: later
// calls are no-ops.
func (sm *StateMachine) SignalDone() {
	sm.mu.Lock()
	sm.state = txmodel.Done
	sm.markDone()
	sm.cond.Broadcast()
	sm.mu.Unlock()
}

// SignalLatencyComplete advances COLD_QUERY/MEASURE to LATENCY_COMPLETE.
func (sm *StateMachine) SignalLatencyComplete() {
	sm.mu.Lock()
	if sm.state == txmodel.ColdQuery || sm.state == txmodel.Measure {
		sm.state = txmodel.LatencyComplete
		sm.cond.Broadcast()
	}
	sm.mu.Unlock()
}

// StartColdQuery advances MEASURE (end of a latency run) into
// COLD_QUERY.
func (sm *StateMachine) StartColdQuery() {
	sm.setState(txmodel.Measure, txmodel.ColdQuery)
}

// StartHotQuery advances COLD_QUERY into MEASURE.
func (sm *StateMachine) StartHotQuery() {
	sm.setState(txmodel.ColdQuery, txmodel.Measure)
}
