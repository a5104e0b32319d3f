package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/catalog"
	"github.com/jpequegn/txnbench/internal/dbconn"
	"github.com/jpequegn/txnbench/internal/dialect"
	"github.com/jpequegn/txnbench/internal/driver"
	"github.com/jpequegn/txnbench/internal/randutil"
	"github.com/jpequegn/txnbench/internal/txmodel"
	"github.com/jpequegn/txnbench/internal/workload"
	"github.com/jpequegn/txnbench/internal/workloadcfg"
	"github.com/jpequegn/txnbench/internal/ycsb"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a benchmark's phase schedule against a database",
	Long: `Run loads a workload configuration file, builds the requested benchmark
module's transaction mix, and drives the configured phase schedule
through a pool of worker goroutines, writing a run report at the end.

Example:
  txnbench run -c txnbench.yaml -b ycsb-lite -o report.json`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("benchmark", "b", "ycsb-lite", "benchmark module to drive (only ycsb-lite is bundled)")
	runCmd.Flags().StringP("output", "o", "", "write the run report as JSON to this path (stdout if empty)")
	runCmd.Flags().IntP("workers", "w", 0, "override the configured terminal count")
	runCmd.Flags().Duration("sample-interval", time.Second, "interval-throughput sampling period (0 disables)")
	runCmd.Flags().Bool("create", false, "create benchmark schema before running")
	runCmd.Flags().Bool("load", false, "bulk-load benchmark data before running")
	runCmd.Flags().Bool("execute", true, "execute the configured phase schedule")
	runCmd.Flags().Bool("watch", false, "watch the workload config file and apply phase-schedule edits to the run in progress")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if cfgFile == "" {
		return fmt.Errorf("a workload config file is required (use -c/--config)")
	}
	wc, err := workloadcfg.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading workload config: %w", err)
	}

	// --create and --load are accepted for CLI-surface parity with the
	// wider benchmarking ecosystem this harness belongs to, but schema
	// creation and bulk loading are out of scope (spec.md §1).
	if create, _ := cmd.Flags().GetBool("create"); create {
		slog.Warn("--create is a no-op: schema creation is out of scope for this build")
	}
	if load, _ := cmd.Flags().GetBool("load"); load {
		slog.Warn("--load is a no-op: bulk loading is out of scope for this build")
	}
	execute, _ := cmd.Flags().GetBool("execute")
	if !execute {
		slog.Info("--execute=false: workload config loaded but not run")
		return nil
	}

	benchmark, _ := cmd.Flags().GetString("benchmark")
	if benchmark != "ycsb-lite" {
		return fmt.Errorf("unknown benchmark %q: only \"ycsb-lite\" is bundled", benchmark)
	}

	dial, err := dialerFor(wc)
	if err != nil {
		return fmt.Errorf("building connection dialer: %w", err)
	}

	rng := randutil.NewLocked(1, uint64(time.Now().UnixNano()))
	module := ycsb.New(dial, wc.ToBenchConfiguration(), rng)
	mix := workload.NewMix(module.GetCatalog().Types(), rng)

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = wc.TerminalCount
	}
	sampleInterval, _ := cmd.Flags().GetDuration("sample-interval")

	d := driver.New(driver.Config{
		WorkerCount:         workers,
		DBType:              wc.ParsedDBType(),
		Isolation:           wc.ParsedIsolation(),
		RecordAbortMessages: wc.RecordAbortMessages,
		Logger:              logger,
		IntervalSample:      sampleInterval,
	}, module, mix)

	schedule, err := buildSchedule(module.GetCatalog(), wc.Phases)
	if err != nil {
		return fmt.Errorf("building phase schedule: %w", err)
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		watchSchedule(d, module.GetCatalog(), cfgFile)
	}

	slog.Info("starting run", "dbType", wc.DBType, "workers", workers, "phases", len(schedule))
	r, runErr := d.Run(ctx, schedule)
	if runErr != nil {
		slog.Error("run failed", "error", runErr)
	}

	output, _ := cmd.Flags().GetString("output")
	if err := writeReport(r, output); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return runErr
}

// dialerFor selects the Connection adapter matching wc's configured
// dialect (spec.md §4.8): go-sqlite3 for SQLite, lib/pq for PostgreSQL,
// and pgx for CockroachDB (cockroach_restart savepoints).
func dialerFor(wc workloadcfg.WorkloadConfig) (ycsb.Dialer, error) {
	switch wc.ParsedDBType() {
	case dialect.SQLite:
		return func(ctx context.Context) (bench.Connection, error) {
			return dbconn.OpenSQLite(wc.DSN)
		}, nil
	case dialect.Postgres:
		return func(ctx context.Context) (bench.Connection, error) {
			return dbconn.OpenPostgres(wc.DSN)
		}, nil
	case dialect.CockroachDB:
		return func(ctx context.Context) (bench.Connection, error) {
			return dbconn.OpenPgx(ctx, wc.DSN, true)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported db_type %q for the bundled ycsb-lite benchmark", wc.DBType)
	}
}

// watchSchedule arms a workloadcfg.WatchReload watch on cfgFile so edits to
// the phase schedule take effect on the run already underway: every reload
// is rebuilt into a fresh []driver.ScheduleEntry against cat and swapped in
// via d.ReplaceSchedule. A reload that fails to parse or build is logged and
// otherwise ignored, leaving the run on its last-known-good schedule.
func watchSchedule(d *driver.Driver, cat *catalog.Catalog, cfgFile string) {
	workloadcfg.WatchReload(cfgFile, func(wc workloadcfg.WorkloadConfig, err error) {
		if err != nil {
			slog.Error("workload config reload failed, keeping previous schedule", "error", err)
			return
		}
		schedule, err := buildSchedule(cat, wc.Phases)
		if err != nil {
			slog.Error("workload config reload produced an invalid schedule, keeping previous schedule", "error", err)
			return
		}
		d.ReplaceSchedule(schedule)
		slog.Info("workload config reloaded, phase schedule updated", "phases", len(schedule))
	})
}

// buildSchedule turns the on-disk phase specs into the Driver's
// ScheduleEntry sequence, resolving LATENCY query lists against the
// module's catalog so the Driver only ever deals in transaction type ids.
func buildSchedule(cat *catalog.Catalog, phases []workloadcfg.PhaseSpec) ([]driver.ScheduleEntry, error) {
	entries := make([]driver.ScheduleEntry, 0, len(phases))
	for i, spec := range phases {
		kind, err := spec.ParsedKind()
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", i, err)
		}
		state, err := spec.ParsedState()
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", i, err)
		}

		var queryList []int
		if kind == txmodel.Latency {
			for _, name := range spec.QueryList {
				typ, _, err := cat.ByName(name)
				if err != nil {
					return nil, fmt.Errorf("phase %d: %w", i, err)
				}
				queryList = append(queryList, typ.ID)
			}
		}

		entries = append(entries, driver.ScheduleEntry{
			Duration:  spec.ParsedDuration(),
			Phase:     txmodel.Phase{ID: i + 1, Kind: kind, Rate: spec.Rate},
			QueryList: queryList,
			State:     state,
		})
	}
	return entries, nil
}
