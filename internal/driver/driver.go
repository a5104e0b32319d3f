// Package driver implements the Worker Pool Driver (C7): constructs N
// Workers bound to a shared StateMachine, arms the start barrier,
// advances the phase/state schedule, dispatches statement cancellation
// on phase changes, samples per-worker interval throughput, and
// aggregates every worker's Stats into a report.RunReport at the end of
// a run (spec.md §4, §5).
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/catalog"
	"github.com/jpequegn/txnbench/internal/dialect"
	"github.com/jpequegn/txnbench/internal/report"
	"github.com/jpequegn/txnbench/internal/txmodel"
	"github.com/jpequegn/txnbench/internal/worker"
	"github.com/jpequegn/txnbench/internal/workload"
	"github.com/sourcegraph/conc"
)

// ScheduleEntry is one scheduled (duration, phase, queryList) step the
// Driver advances the StateMachine through. queryList is only consulted
// for LATENCY phases.
type ScheduleEntry struct {
	Duration  time.Duration
	Phase     txmodel.Phase
	QueryList []int
	State     txmodel.GlobalState
}

// Config configures a Driver.
type Config struct {
	WorkerCount         int
	DBType              dialect.DBType
	Isolation           bench.IsolationLevel
	RecordAbortMessages bool
	Logger              *slog.Logger
	// IntervalSample is how often the Driver samples and resets each
	// worker's interval-throughput counter (spec.md §4.7). Zero disables
	// sampling.
	IntervalSample time.Duration
}

// Driver owns a pool of Workers sharing one StateMachine and Catalog,
// advances the run's phase schedule, and aggregates the final Stats.
type Driver struct {
	cfg     Config
	sm      *workload.StateMachine
	cat     *catalog.Catalog
	module  bench.Module
	workers []*worker.Worker

	throughputSamples []int64Sample

	scheduleMu sync.Mutex
	schedule   []ScheduleEntry
}

type int64Sample struct {
	atNs  int64
	total int64
}

// New constructs a Driver with cfg.WorkerCount Workers, all bound to a
// fresh StateMachine built from the module's catalog-derived mix.
func New(cfg Config, module bench.Module, mix *workload.Mix) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	sm := workload.New(mix)
	cat := module.GetCatalog()

	d := &Driver{cfg: cfg, sm: sm, cat: cat, module: module}
	for i := 0; i < cfg.WorkerCount; i++ {
		w := worker.New(worker.Config{
			ID:                  i,
			DBType:              cfg.DBType,
			Isolation:           cfg.Isolation,
			RecordAbortMessages: cfg.RecordAbortMessages,
			Logger:              cfg.Logger,
		}, sm, cat, module)
		d.workers = append(d.workers, w)
	}
	return d
}

// Run arms the start barrier, launches every worker under a
// panic-propagating conc.WaitGroup, drives the schedule to completion,
// and returns the aggregated RunReport. It blocks until every worker has
// returned.
func (d *Driver) Run(ctx context.Context, schedule []ScheduleEntry) (report.RunReport, error) {
	startedAt := time.Now()
	d.ReplaceSchedule(schedule)

	var wg conc.WaitGroup
	for _, w := range d.workers {
		w := w
		wg.Go(func() {
			if err := w.Run(ctx); err != nil {
				panic(fmt.Errorf("worker %d: %w", w.ID(), err))
			}
		})
	}

	d.sm.ArmStart()

	stopSampling := make(chan struct{})
	sampleDone := make(chan struct{})
	if d.cfg.IntervalSample > 0 {
		go d.sampleThroughput(stopSampling, sampleDone)
	} else {
		close(sampleDone)
	}

	d.runSchedule()

	d.sm.SignalDone()
	close(stopSampling)
	<-sampleDone

	runErr := d.waitWorkers(&wg)

	finishedAt := time.Now()
	stats := d.mergeStats()
	typeNames := make(map[int]string)
	for _, t := range d.cat.Types() {
		typeNames[t.ID] = t.Name
	}

	r := report.Build(startedAt, finishedAt, d.cfg.DBType.String(), len(d.workers), stats, typeNames)
	return r, runErr
}

// waitWorkers recovers a panic propagated by conc.WaitGroup.Wait (which
// conc itself re-panics) so Run can return it as an ordinary error
// instead of crashing the process.
func (d *Driver) waitWorkers(wg *conc.WaitGroup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("driver: worker panicked: %v", r)
		}
	}()
	wg.Wait()
	return nil
}

// runSchedule advances the StateMachine through each ScheduleEntry in
// order, issuing a statement-cancel to every worker immediately before
// moving to the next entry so no worker is left executing a statement
// that belongs to a phase already closed out (spec.md §5). It re-reads
// the current schedule via currentSchedule before each entry, so a
// ReplaceSchedule call made mid-run (e.g. from a config-file watch)
// takes effect starting at the next not-yet-run entry.
func (d *Driver) runSchedule() {
	for i := 0; ; i++ {
		schedule := d.currentSchedule()
		if i >= len(schedule) {
			break
		}
		entry := schedule[i]

		phase := entry.Phase
		d.sm.SetPhase(&phase, entry.QueryList)
		d.sm.ForceState(entry.State)

		timer := time.NewTimer(entry.Duration)
		<-timer.C
		timer.Stop()

		for _, w := range d.workers {
			_ = w.CancelStatement()
		}
	}
	d.sm.SetPhase(nil, nil)
}

// ReplaceSchedule atomically swaps the phase schedule runSchedule
// advances through. Entries already executed are unaffected; entries
// from index i onward (i being however far runSchedule has progressed)
// are replaced by schedule. Safe to call concurrently with Run, which is
// how a workloadcfg.WatchReload callback applies a live config-file edit
// to a benchmark already underway.
func (d *Driver) ReplaceSchedule(schedule []ScheduleEntry) {
	d.scheduleMu.Lock()
	d.schedule = schedule
	d.scheduleMu.Unlock()
}

// currentSchedule returns the schedule runSchedule is currently
// advancing through.
func (d *Driver) currentSchedule() []ScheduleEntry {
	d.scheduleMu.Lock()
	defer d.scheduleMu.Unlock()
	return d.schedule
}

// sampleThroughput periodically drains every worker's interval counter
// for live throughput reporting (spec.md §4.7). Samples are kept only
// in-memory here; a CLI layer can poll ThroughputSamples to render
// them.
func (d *Driver) sampleThroughput(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.cfg.IntervalSample)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			// Drain whatever accrued since the last tick so the sum of
			// every returned sample still equals the total measured
			// count (spec.md §8 interval-counter linearizability).
			d.recordThroughputSample(time.Now())
			return
		case now := <-ticker.C:
			d.recordThroughputSample(now)
		}
	}
}

// recordThroughputSample atomically reads-and-resets every worker's
// interval counter and appends their sum as one sample.
func (d *Driver) recordThroughputSample(at time.Time) {
	var total int64
	for _, w := range d.workers {
		total += w.Stats.GetAndResetInterval()
	}
	d.throughputSamples = append(d.throughputSamples, int64Sample{atNs: at.UnixNano(), total: total})
}

// mergeStats folds every worker's Stats into a single aggregate.
func (d *Driver) mergeStats() *worker.Stats {
	merged := worker.NewStats(0)
	for _, w := range d.workers {
		merged.Merge(w.Stats)
	}
	return merged
}

// ThroughputSample is one interval's aggregate measured-request count.
type ThroughputSample struct {
	AtUnixNs int64
	Total    int64
}

// ThroughputSamples returns every interval sample recorded during Run.
func (d *Driver) ThroughputSamples() []ThroughputSample {
	out := make([]ThroughputSample, len(d.throughputSamples))
	for i, s := range d.throughputSamples {
		out[i] = ThroughputSample{AtUnixNs: s.atNs, Total: s.total}
	}
	return out
}
