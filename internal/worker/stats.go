package worker

import (
	"sync/atomic"

	"github.com/jpequegn/txnbench/internal/histogram"
)

// Stats is the per-worker accumulation spec.md §3 calls WorkerStats: four
// histograms keyed by TransactionType (success, abort, retry-count,
// error), a map of truncated abort-message histograms, and the latency
// Recorder. A Worker owns its Stats exclusively until the run
// terminates; the Driver gains read-only access afterward.
type Stats struct {
	Recorder *histogram.Recorder

	Success *histogram.Counts[int]
	Abort   *histogram.Counts[int]
	Retry   *histogram.Counts[int]
	Errors  *histogram.Counts[int]

	AbortMessages *histogram.AbortMessageHistograms

	intervalRequests atomic.Int64
}

// NewStats returns an empty Stats, pre-sizing the Recorder for the
// caller's expected sample count.
func NewStats(expectedSamples int) *Stats {
	return &Stats{
		Recorder:      histogram.NewRecorder(expectedSamples),
		Success:       histogram.NewCounts[int](),
		Abort:         histogram.NewCounts[int](),
		Retry:         histogram.NewCounts[int](),
		Errors:        histogram.NewCounts[int](),
		AbortMessages: histogram.NewAbortMessageHistograms(),
	}
}

// recordInterval is called once per validly-measured sample, mirroring
// spec.md §4.6's "intervalCounter.increment()" inside the measurement
// branch.
func (s *Stats) recordInterval() {
	s.intervalRequests.Add(1)
}

// GetAndResetInterval atomically reads and resets the per-worker
// interval-throughput counter. The Driver samples this at a fixed
// cadence per worker (spec.md §4.7); the sum of every call's return
// value over a run equals the total number of measured samples.
func (s *Stats) GetAndResetInterval() int64 {
	return s.intervalRequests.Swap(0)
}

// Merge folds other into s, used by the Driver to aggregate every
// worker's Stats at the end of a run.
func (s *Stats) Merge(other *Stats) {
	s.Success.Merge(other.Success)
	s.Abort.Merge(other.Abort)
	s.Retry.Merge(other.Retry)
	s.Errors.Merge(other.Errors)
	s.AbortMessages.Merge(other.AbortMessages)
	s.Recorder.Merge(other.Recorder)
}
