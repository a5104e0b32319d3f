// Package randutil provides a concurrency-safe math/rand/v2 source.
// bench.Module.RNG() hands out a single *rand.Rand shared by every
// worker goroutine (spec.md §6); math/rand/v2's PCG source is not safe
// for concurrent use on its own, so callers that build a Module serving
// more than one worker should seed it through NewLocked rather than
// rand.New(rand.NewPCG(...)) directly.
package randutil

import (
	"math/rand/v2"
	"sync"
)

// lockedSource serializes access to an underlying rand.Source so the
// *rand.Rand built on top of it is safe for concurrent callers.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// NewLocked returns a *rand.Rand seeded like rand.NewPCG(seed1, seed2)
// but safe for concurrent use by multiple worker goroutines.
func NewLocked(seed1, seed2 uint64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewPCG(seed1, seed2)})
}
