// Package ycsb is a small reference benchmark module satisfying the
// benchmark module contract (spec.md §6): two transaction types, Read
// and Update, a weighted mix, and a synthetic 1% user-abort on Update
// mirroring TPC-C's mandated 1% NewOrder rollback (see GLOSSARY). It is
// deliberately thin — real procedure bodies are out of scope per
// spec.md §1. Its procedures produce success and the synthetic
// user-abort themselves; retry, retry-different and fatal outcomes arise
// only from whatever database errors the connection adapter raises, and
// the module synthesizes none of them. GetConnection dials a fresh
// Connection per call so concurrent workers never share transaction
// state.
package ycsb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/catalog"
	"github.com/jpequegn/txnbench/internal/dbconn"
	"github.com/jpequegn/txnbench/internal/dbtxn"
	"github.com/jpequegn/txnbench/internal/txmodel"
)

// Transaction type ids this module registers.
const (
	TypeRead   = 1
	TypeUpdate = 2
)

// abortRate is the fraction of Update attempts that synthesize a
// dbtxn.UserAbort rather than completing, standing in for a mandated
// benchmark rollback rate.
const abortRate = 0.01

// tableName is the single key/value table the module's schema assumes
// already exists; schema creation is out of scope (spec.md §1).
const tableName = "ycsb_table"

// Dialer opens one fresh Connection on demand. Each call must return an
// independent Connection safe to hand to a single worker goroutine for
// the lifetime of one doWork call, including its retry attempts; the
// Worker closes it itself once doWork returns (spec.md §4.6.1).
type Dialer func(ctx context.Context) (bench.Connection, error)

// Module implements bench.Module by dialing a fresh Connection per call
// through the supplied Dialer, matching the per-doWork connection
// lifecycle Worker.doWork assumes (it defers Close() once per call).
type Module struct {
	dial Dialer
	cat  *catalog.Catalog
	cfg  bench.WorkloadConfiguration
	rng  *rand.Rand
}

// New builds a ycsb-lite Module that dials connections through dial
// (e.g. func(ctx) (bench.Connection, error) { return dbconn.OpenSQLite(dsn) }).
// The caller is responsible for creating tableName beforehand against
// whatever database dial targets.
func New(dial Dialer, cfg bench.WorkloadConfiguration, rng *rand.Rand) *Module {
	m := &Module{dial: dial, cfg: cfg, rng: rng}
	readType := txmodel.TransactionType{ID: TypeRead, Name: "Read", Weight: 95}
	updateType := txmodel.TransactionType{ID: TypeUpdate, Name: "Update", Weight: 5}
	m.cat = catalog.New([]catalog.Registration{
		{Type: readType, Procedure: &readProcedure{}},
		{Type: updateType, Procedure: &updateProcedure{rng: rng}},
	})
	return m
}

func (m *Module) GetConnection(ctx context.Context) (bench.Connection, error) {
	return m.dial(ctx)
}

func (m *Module) GetProcedures() map[int]bench.Procedure {
	out := make(map[int]bench.Procedure, 2)
	for _, typ := range m.cat.Types() {
		_, proc, err := m.cat.ByID(typ.ID)
		if err != nil {
			continue
		}
		if bp, ok := proc.(bench.Procedure); ok {
			out[typ.ID] = bp
		}
	}
	return out
}

func (m *Module) GetWorkloadConfiguration() bench.WorkloadConfiguration { return m.cfg }
func (m *Module) GetCatalog() *catalog.Catalog                          { return m.cat }
func (m *Module) RNG() *rand.Rand                                       { return m.rng }

// readProcedure implements a YCSB-style point read: fetch one row by a
// randomly chosen key. It never aborts or errors under normal operation.
type readProcedure struct{}

func (p *readProcedure) Name() string { return "Read" }

func (p *readProcedure) Execute(ctx context.Context, conn bench.Connection, typ txmodel.TransactionType, deps bench.Dependencies) (txmodel.TransactionStatus, error) {
	q, ok := conn.(dbconn.Querier)
	if !ok {
		return 0, fmt.Errorf("%w: connection does not implement dbconn.Querier", dbtxn.ErrProgramming)
	}
	key := deps.RNG.IntN(1000)
	var value string
	err := q.QueryRow(ctx, []any{&value}, "SELECT v FROM "+tableName+" WHERE k = ?", key)
	if err != nil {
		// A missing key under YCSB-lite's loose schema assumptions is not
		// itself a benchmark failure; treat it the same as a hit.
		if errors.Is(err, sql.ErrNoRows) {
			return txmodel.StatusSuccess, nil
		}
		return 0, err
	}
	return txmodel.StatusSuccess, nil
}

// updateProcedure implements a YCSB-style point update, synthesizing a
// UserAbort on a fixed fraction of attempts to exercise the Worker's
// abort-message histogram path.
type updateProcedure struct {
	rng *rand.Rand
}

func (p *updateProcedure) Name() string { return "Update" }

func (p *updateProcedure) Execute(ctx context.Context, conn bench.Connection, typ txmodel.TransactionType, deps bench.Dependencies) (txmodel.TransactionStatus, error) {
	if deps.RNG.Float64() < abortRate {
		return 0, &dbtxn.UserAbort{Message: "synthetic_ycsb_update_abort"}
	}
	q, ok := conn.(dbconn.Querier)
	if !ok {
		return 0, fmt.Errorf("%w: connection does not implement dbconn.Querier", dbtxn.ErrProgramming)
	}
	key := deps.RNG.IntN(1000)
	value := fmt.Sprintf("v%d", deps.RNG.IntN(1_000_000))
	if err := q.Exec(ctx, "INSERT INTO "+tableName+" (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", key, value); err != nil {
		return 0, err
	}
	return txmodel.StatusSuccess, nil
}
