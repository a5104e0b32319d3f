// Package workloadcfg supplies the on-disk configuration surface the CLI
// parses with viper and turns into the runtime types spec.md §3/§6
// leave external: WorkloadConfig (getWorkloadConfiguration()'s concrete
// shape) and PhaseSpec (the schedule the Driver builds txmodel.Phase
// values from).
package workloadcfg

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dialect"
	"github.com/jpequegn/txnbench/internal/txmodel"
	"github.com/spf13/viper"
)

// PhaseSpec is the on-disk shape of one txmodel.Phase, plus whatever the
// Driver needs to build the phase's dispatch data: a literal query list
// for LATENCY phases, how long the Driver should hold the phase open,
// and which GlobalState the schedule should force while it runs.
// Weights is decoded but not applied: every THROUGHPUT phase draws from
// the one mix built from the benchmark catalog's own type weights.
type PhaseSpec struct {
	Kind       string         `mapstructure:"kind"`        // "throughput" or "latency"
	Rate       float64        `mapstructure:"rate"`        // target ops/sec, THROUGHPUT only
	Weights    map[string]int `mapstructure:"weights"`     // txn name -> weight; decoded, not applied
	QueryList  []string       `mapstructure:"query_list"`  // txn names in fixed order, LATENCY only
	DurationMS int            `mapstructure:"duration_ms"` // how long the Driver holds this phase open
	State      string         `mapstructure:"state"`       // "warmup", "cold_query", "measure"
}

// ParsedKind returns the PhaseKind this spec describes.
func (p PhaseSpec) ParsedKind() (txmodel.PhaseKind, error) {
	switch strings.ToLower(p.Kind) {
	case "throughput", "":
		return txmodel.Throughput, nil
	case "latency":
		return txmodel.Latency, nil
	default:
		return 0, fmt.Errorf("workloadcfg: unknown phase kind %q", p.Kind)
	}
}

// ParsedDuration returns how long the Driver should hold this phase open.
func (p PhaseSpec) ParsedDuration() time.Duration {
	return time.Duration(p.DurationMS) * time.Millisecond
}

// ParsedState returns the GlobalState the schedule should force while
// this phase runs, defaulting to Measure for "" so a schedule entry that
// doesn't name a state still records latency samples.
func (p PhaseSpec) ParsedState() (txmodel.GlobalState, error) {
	switch strings.ToLower(p.State) {
	case "warmup":
		return txmodel.Warmup, nil
	case "cold_query":
		return txmodel.ColdQuery, nil
	case "measure", "":
		return txmodel.Measure, nil
	default:
		return 0, fmt.Errorf("workloadcfg: unknown phase state %q", p.State)
	}
}

// WorkloadConfig is the top-level on-disk configuration a run is driven
// from: which DBMS dialect to connect as, the isolation level, how many
// worker threads to run, whether to record abort messages, and the
// phase schedule.
type WorkloadConfig struct {
	DBType              string      `mapstructure:"db_type"`
	DSN                 string      `mapstructure:"dsn"`
	Isolation           string      `mapstructure:"isolation"`
	TerminalCount       int         `mapstructure:"terminals"`
	RecordAbortMessages bool        `mapstructure:"record_abort_messages"`
	Phases              []PhaseSpec `mapstructure:"phases"`
}

// ParsedDBType maps the configured db_type string onto dialect.DBType.
func (c WorkloadConfig) ParsedDBType() dialect.DBType {
	switch strings.ToLower(c.DBType) {
	case "mysql":
		return dialect.MySQL
	case "mariadb":
		return dialect.MariaDB
	case "sqlserver", "mssql":
		return dialect.SQLServer
	case "postgres", "postgresql":
		return dialect.Postgres
	case "cockroachdb", "cockroach":
		return dialect.CockroachDB
	case "oracle":
		return dialect.Oracle
	case "db2":
		return dialect.DB2
	case "sqlite", "sqlite3":
		return dialect.SQLite
	default:
		return dialect.Unknown
	}
}

// ParsedIsolation maps the configured isolation string onto
// bench.IsolationLevel, defaulting to IsolationDefault for "" or an
// unrecognized value.
func (c WorkloadConfig) ParsedIsolation() bench.IsolationLevel {
	switch strings.ToLower(c.Isolation) {
	case "read_uncommitted":
		return bench.IsolationReadUncommitted
	case "read_committed":
		return bench.IsolationReadCommitted
	case "repeatable_read":
		return bench.IsolationRepeatableRead
	case "serializable":
		return bench.IsolationSerializable
	default:
		return bench.IsolationDefault
	}
}

// ToBenchConfiguration renders the subset of WorkloadConfig that
// satisfies bench.Module.GetWorkloadConfiguration's contract.
func (c WorkloadConfig) ToBenchConfiguration() bench.WorkloadConfiguration {
	return bench.WorkloadConfiguration{
		DBType:              c.DBType,
		Isolation:           c.ParsedIsolation(),
		RecordAbortMessages: c.RecordAbortMessages,
		TerminalCount:       c.TerminalCount,
	}
}

// Load reads a YAML or TOML workload configuration file at path into a
// fresh viper instance (not the global one, so repeated Load calls in
// tests don't leak state) and unmarshals it into a WorkloadConfig.
func Load(path string) (WorkloadConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	var cfg WorkloadConfig
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("workloadcfg: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("workloadcfg: decoding %s: %w", path, err)
	}
	return cfg, nil
}

// WatchReload re-reads path on every change (fsnotify, via viper's
// WatchConfig) and invokes onChange with the freshly decoded
// WorkloadConfig, letting a running benchmark's phase schedule be edited
// live — onChange is responsible for validating and applying it.
func WatchReload(path string, onChange func(WorkloadConfig, error)) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		onChange(WorkloadConfig{}, fmt.Errorf("workloadcfg: reading %s: %w", path, err))
		return
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg WorkloadConfig
		if err := v.Unmarshal(&cfg); err != nil {
			onChange(WorkloadConfig{}, fmt.Errorf("workloadcfg: reloading %s: %w", path, err))
			return
		}
		onChange(cfg, nil)
	})
	v.WatchConfig()
}
