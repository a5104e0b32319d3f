// Package bench defines the external interfaces spec.md §6 specifies as
// collaborators of the core worker execution engine: the abstract
// Connection contract, the Procedure/executeWork contract a benchmark
// plugin implements, and the benchmark module's own configuration and
// connection-provider surface. Nothing here has an implementation —
// internal/dbconn and internal/ycsb provide concrete adapters.
package bench

import (
	"context"
	"math/rand/v2"

	"github.com/jpequegn/txnbench/internal/catalog"
	"github.com/jpequegn/txnbench/internal/txmodel"
)

// IsolationLevel mirrors database/sql.IsolationLevel without requiring a
// Connection adapter to be backed by database/sql specifically.
type IsolationLevel int

const (
	IsolationDefault IsolationLevel = iota
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

// Savepoint is an opaque handle to a nested transaction marker.
type Savepoint interface {
	// Name returns the savepoint's identifier, e.g. "cockroach_restart"
	// for CockroachDB restart savepoints, or the name an adapter
	// generated (such as "sp1") when the caller asked for an unnamed one.
	Name() string
}

// Statement is whatever a Connection is currently executing. It is
// opaque to the worker; CancelStatement calls into it to implement the
// statement-cancel mechanism in spec.md §5.
type Statement interface {
	Cancel() error
}

// Connection is the abstract contract spec.md §6 requires:
// setAutoCommit, setTransactionIsolation, setSavepoint, releaseSavepoint,
// rollback, commit, close — plus the statement-cancel pair from §5.
type Connection interface {
	AutoCommit() bool
	SetAutoCommit(ctx context.Context, enabled bool) error
	SetTransactionIsolation(ctx context.Context, level IsolationLevel) error

	SetSavepoint(ctx context.Context, name string) (Savepoint, error)
	ReleaseSavepoint(ctx context.Context, sp Savepoint) error
	RollbackToSavepoint(ctx context.Context, sp Savepoint) error

	Rollback(ctx context.Context) error
	Commit(ctx context.Context) error

	SetCurrStatement(stmt Statement)
	CancelStatement() error

	Close() error
}

// Procedure is a benchmark-supplied transaction body: the executeWork
// contract in spec.md §6. Execute may return a status directly (e.g.
// StatusSuccess) or return an error wrapping dbtxn.UserAbort /
// dbtxn.DatabaseError for the Worker to interpret.
type Procedure interface {
	Name() string
	Execute(ctx context.Context, conn Connection, typ txmodel.TransactionType, deps Dependencies) (txmodel.TransactionStatus, error)
}

// Dependencies are the passthroughs spec.md §6 says executeWork receives
// from the benchmark module: getCatalog(), rng().
type Dependencies struct {
	Catalog *catalog.Catalog
	RNG     *rand.Rand
}

// WorkloadConfiguration is getWorkloadConfiguration() from spec.md §6.
type WorkloadConfiguration struct {
	DBType              string
	Isolation           IsolationLevel
	RecordAbortMessages bool
	TerminalCount       int
}

// Module is the benchmark module contract spec.md §6 requires the
// Worker and Driver to consume: getConnection, getProcedures,
// getWorkloadConfiguration, getCatalog, rng.
type Module interface {
	GetConnection(ctx context.Context) (Connection, error)
	GetProcedures() map[int]Procedure
	GetWorkloadConfiguration() WorkloadConfiguration
	GetCatalog() *catalog.Catalog
	RNG() *rand.Rand
}
