package histogram

import (
	"sync"

	"github.com/jpequegn/txnbench/internal/txmodel"
)

// Recorder is a growable, single-writer buffer of latency samples. A
// Worker owns a Recorder exclusively for the duration of a run; the Driver
// reads it only after the worker has stopped.
type Recorder struct {
	mu      sync.Mutex
	samples []txmodel.Sample
}

// NewRecorder returns an empty Recorder pre-sized for the expected sample
// count, avoiding repeated reallocation on the worker's hot path.
func NewRecorder(expected int) *Recorder {
	return &Recorder{samples: make([]txmodel.Sample, 0, expected)}
}

// Append adds one sample. Amortized O(1); safe to call only from the
// owning worker goroutine.
func (r *Recorder) Append(typeID int, startNs, endNs int64, workerID, phaseID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, txmodel.Sample{
		TypeID:   typeID,
		StartNs:  startNs,
		EndNs:    endNs,
		WorkerID: workerID,
		PhaseID:  phaseID,
	})
}

// Size returns the current sample count.
func (r *Recorder) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Iterate returns a snapshot slice of every recorded sample in append
// order. It is restartable and idempotent: calling it twice returns
// equivalent data, and mutating the returned slice never affects the
// Recorder. Intended to be called once the run has completed.
func (r *Recorder) Iterate() []txmodel.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]txmodel.Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Merge appends every sample in other to r, used by the Driver to fold
// each worker's Recorder into one aggregate at the end of a run. Merge
// order across workers is not meaningful — samples already carry their
// own WorkerID/PhaseID/timestamps — so this is simple concatenation.
func (r *Recorder) Merge(other *Recorder) {
	samples := other.Iterate()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, samples...)
}
