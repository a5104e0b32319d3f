package driver

import (
	"context"
	"testing"
	"time"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dbconn"
	"github.com/jpequegn/txnbench/internal/dialect"
	"github.com/jpequegn/txnbench/internal/randutil"
	"github.com/jpequegn/txnbench/internal/txmodel"
	"github.com/jpequegn/txnbench/internal/workload"
	"github.com/jpequegn/txnbench/internal/ycsb"
)

func TestDriver_RunEndToEnd(t *testing.T) {
	dsn := "file:driver_test_end_to_end?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := dbconn.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if err := conn.Exec(ctx, "CREATE TABLE ycsb_table (k INTEGER PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	rng := randutil.NewLocked(1, 2)
	dial := func(ctx context.Context) (bench.Connection, error) {
		return dbconn.OpenSQLite(dsn)
	}
	module := ycsb.New(dial, bench.WorkloadConfiguration{DBType: "sqlite"}, rng)
	mix := workload.NewMix(module.GetCatalog().Types(), rng)

	d := New(Config{
		WorkerCount: 2,
		DBType:      dialect.SQLite,
	}, module, mix)

	schedule := []ScheduleEntry{
		{
			Duration: 50 * time.Millisecond,
			Phase:    txmodel.Phase{ID: 1, Kind: txmodel.Throughput, Rate: 200},
			State:    txmodel.Measure,
		},
	}

	r, err := d.Run(ctx, schedule)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.DBType != "SQLite" {
		t.Errorf("DBType = %q, want SQLite", r.DBType)
	}
	if r.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want 2", r.WorkerCount)
	}
	if len(r.Transactions) == 0 {
		t.Error("expected at least one transaction type summary")
	}
}
