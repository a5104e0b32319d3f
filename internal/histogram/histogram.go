// Package histogram implements the append-only latency Recorder (C1) and
// the outcome counters (C2) a Worker accumulates while running: per-type
// success/abort/retry/error counts and truncated abort-message buckets.
package histogram

import "sync"

// Counts is a thread-safe mapping from key to a non-negative occurrence
// count. It backs every per-transaction-type histogram a Worker keeps.
type Counts[K comparable] struct {
	mu     sync.Mutex
	counts map[K]int64
}

// NewCounts returns an empty Counts.
func NewCounts[K comparable]() *Counts[K] {
	return &Counts[K]{counts: make(map[K]int64)}
}

// Add increments the count for k by one and returns the new value.
func (c *Counts[K]) Add(k K) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[k]++
	return c.counts[k]
}

// Get returns the current count for k (zero if never added).
func (c *Counts[K]) Get(k K) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[k]
}

// KeySet returns a snapshot of all keys with a non-zero count.
func (c *Counts[K]) KeySet() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.counts))
	for k := range c.counts {
		keys = append(keys, k)
	}
	return keys
}

// Merge folds other into c, key by key. Merge is commutative and
// associative: merging a into b then into c yields the same totals as any
// other grouping or order of the same set of Counts.
func (c *Counts[K]) Merge(other *Counts[K]) {
	other.mu.Lock()
	snapshot := make(map[K]int64, len(other.counts))
	for k, v := range other.counts {
		snapshot[k] = v
	}
	other.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range snapshot {
		c.counts[k] += v
	}
}

// abortMessageMaxLen bounds the cardinality of distinct abort-message
// buckets: messages are truncated to this many runes before being used as
// a histogram key.
const abortMessageMaxLen = 20

// TruncateAbortMessage applies the prefix+ellipsis policy spec.md §4.2
// requires before an abort message is used as a histogram key.
func TruncateAbortMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= abortMessageMaxLen {
		return msg
	}
	return string(runes[:abortMessageMaxLen]) + "…"
}

// AbortMessageHistograms is a per-TransactionType map of abort-message
// histograms, e.g. WorkerStats.txnAbortMessages in spec.md §3.
type AbortMessageHistograms struct {
	mu   sync.Mutex
	byID map[int]*Counts[string]
}

// NewAbortMessageHistograms returns an empty AbortMessageHistograms.
func NewAbortMessageHistograms() *AbortMessageHistograms {
	return &AbortMessageHistograms{byID: make(map[int]*Counts[string])}
}

// Record truncates msg and increments its bucket for the given
// transaction type id, creating the per-type histogram on first use.
func (a *AbortMessageHistograms) Record(typeID int, msg string) {
	bucket := a.forType(typeID)
	bucket.Add(TruncateAbortMessage(msg))
}

// Get returns the count recorded for msg (already truncated by the
// caller, or not — Get truncates internally so callers can pass raw
// messages) under typeID.
func (a *AbortMessageHistograms) Get(typeID int, msg string) int64 {
	return a.forType(typeID).Get(TruncateAbortMessage(msg))
}

// ForType returns the (possibly empty) histogram of truncated abort
// messages recorded for typeID.
func (a *AbortMessageHistograms) ForType(typeID int) *Counts[string] {
	return a.forType(typeID)
}

// Merge folds other into a, per transaction type.
func (a *AbortMessageHistograms) Merge(other *AbortMessageHistograms) {
	other.mu.Lock()
	types := make([]int, 0, len(other.byID))
	for id := range other.byID {
		types = append(types, id)
	}
	other.mu.Unlock()

	for _, id := range types {
		a.forType(id).Merge(other.forType(id))
	}
}

func (a *AbortMessageHistograms) forType(typeID int) *Counts[string] {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.byID[typeID]
	if !ok {
		c = NewCounts[string]()
		a.byID[typeID] = c
	}
	return c
}
