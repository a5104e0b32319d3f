// Package catalog implements the Transaction Catalog (C3): a static,
// build-once-at-worker-construction registry mapping a TransactionType to
// the benchmark-supplied Procedure that implements it.
package catalog

import (
	"fmt"

	"github.com/jpequegn/txnbench/internal/txmodel"
)

// Procedure is an opaque handle to a benchmark-supplied transaction body.
// The catalog never calls it; it only hands it back to the Worker, which
// invokes it through executeWork.
type Procedure interface {
	// Name returns the procedure's registered name, used by the
	// deprecated name-based lookup.
	Name() string
}

// ErrNotFound is returned by every lookup when the key is unknown.
type ErrNotFound struct {
	Kind string
	Key  any
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("catalog: no procedure registered for %s %v", e.Kind, e.Key)
}

// Catalog is immutable after construction. Exactly one procedure is
// registered per TransactionType; construction panics on a duplicate
// since that indicates a benchmark-definition bug caught before any
// worker starts.
type Catalog struct {
	byID      map[int]entry
	byName    map[string]entry
	byProcPtr map[Procedure]entry
}

type entry struct {
	typ  txmodel.TransactionType
	proc Procedure
}

// Registration is one (type, procedure) pair supplied at construction.
type Registration struct {
	Type      txmodel.TransactionType
	Procedure Procedure
}

// New builds a Catalog from a fixed set of registrations. It panics if two
// registrations share a type id, name, or procedure identity, since that
// can only happen from a programming error in the benchmark plugin.
func New(regs []Registration) *Catalog {
	c := &Catalog{
		byID:      make(map[int]entry, len(regs)),
		byName:    make(map[string]entry, len(regs)),
		byProcPtr: make(map[Procedure]entry, len(regs)),
	}
	for _, r := range regs {
		e := entry{typ: r.Type, proc: r.Procedure}
		if _, dup := c.byID[r.Type.ID]; dup {
			panic(fmt.Sprintf("catalog: duplicate type id %d", r.Type.ID))
		}
		if _, dup := c.byName[r.Type.Name]; dup {
			panic(fmt.Sprintf("catalog: duplicate type name %q", r.Type.Name))
		}
		if _, dup := c.byProcPtr[r.Procedure]; dup {
			panic(fmt.Sprintf("catalog: procedure for type %q already registered", r.Type.Name))
		}
		c.byID[r.Type.ID] = e
		c.byName[r.Type.Name] = e
		c.byProcPtr[r.Procedure] = e
	}
	return c
}

// ByID looks up a procedure by transaction type id. Callers inside the
// worker's dispatch loop must treat a not-found here as a bug in the
// workload mix, not a recoverable condition: the mix generator should
// never hand out an id the catalog does not know about.
func (c *Catalog) ByID(id int) (txmodel.TransactionType, Procedure, error) {
	e, ok := c.byID[id]
	if !ok {
		return txmodel.Invalid, nil, &ErrNotFound{Kind: "type id", Key: id}
	}
	return e.typ, e.proc, nil
}

// ByName is a deprecated, string-keyed lookup preserved only for
// compatibility with legacy benchmark code. New code should use ByID or
// ByProcedure.
func (c *Catalog) ByName(name string) (txmodel.TransactionType, Procedure, error) {
	e, ok := c.byName[name]
	if !ok {
		return txmodel.Invalid, nil, &ErrNotFound{Kind: "name", Key: name}
	}
	return e.typ, e.proc, nil
}

// ByProcedure looks up the TransactionType registered for a procedure's
// identity, useful when a benchmark holds a Procedure reference and needs
// to know which type it implements.
func (c *Catalog) ByProcedure(p Procedure) (txmodel.TransactionType, error) {
	e, ok := c.byProcPtr[p]
	if !ok {
		return txmodel.Invalid, &ErrNotFound{Kind: "procedure", Key: p}
	}
	return e.typ, nil
}

// Types returns every registered TransactionType, in no particular order.
func (c *Catalog) Types() []txmodel.TransactionType {
	out := make([]txmodel.TransactionType, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e.typ)
	}
	return out
}
