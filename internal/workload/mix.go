package workload

import (
	"math/rand/v2"
	"sync"

	"github.com/jpequegn/txnbench/internal/txmodel"
)

// Mix performs weighted random selection of a TransactionType, the policy
// spec.md §3 assigns to the Workload State Machine rather than the
// Worker ("weight (for mix selection — handled by C5, not C6)").
type Mix struct {
	mu      sync.Mutex
	types   []int
	cumWeight []int
	total   int
	rng     *rand.Rand
}

// NewMix builds a Mix from the catalog's transaction types. Types with a
// non-positive weight are never selected but remain valid fetch targets
// for latency-run query lists.
func NewMix(types []txmodel.TransactionType, rng *rand.Rand) *Mix {
	m := &Mix{rng: rng}
	running := 0
	for _, t := range types {
		if t.Weight <= 0 {
			continue
		}
		running += t.Weight
		m.types = append(m.types, t.ID)
		m.cumWeight = append(m.cumWeight, running)
	}
	m.total = running
	return m
}

// Pick returns a weighted-random type id. It panics if no type in the mix
// has positive weight, since that is a workload-configuration bug that
// should surface before any worker starts fetching.
func (m *Mix) Pick() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total <= 0 {
		panic("workload: mix has no positively-weighted transaction types")
	}
	target := m.rng.IntN(m.total) + 1
	for i, cum := range m.cumWeight {
		if target <= cum {
			return m.types[i]
		}
	}
	return m.types[len(m.types)-1]
}
