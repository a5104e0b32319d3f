package workloadcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jpequegn/txnbench/internal/bench"
	"github.com/jpequegn/txnbench/internal/dialect"
	"github.com/jpequegn/txnbench/internal/txmodel"
)

const sampleYAML = `
db_type: postgres
dsn: "postgres://localhost/bench"
isolation: serializable
terminals: 8
record_abort_messages: true
phases:
  - kind: throughput
    rate: 500
    duration_ms: 5000
    state: measure
    weights:
      Read: 95
      Update: 5
  - kind: latency
    query_list: ["Read", "Update", "Read"]
`

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := writeTemp(t, "workload.yaml", sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBType != "postgres" {
		t.Errorf("DBType = %q, want postgres", cfg.DBType)
	}
	if cfg.TerminalCount != 8 {
		t.Errorf("TerminalCount = %d, want 8", cfg.TerminalCount)
	}
	if !cfg.RecordAbortMessages {
		t.Error("RecordAbortMessages = false, want true")
	}
	if len(cfg.Phases) != 2 {
		t.Fatalf("len(Phases) = %d, want 2", len(cfg.Phases))
	}

	if got := cfg.ParsedDBType(); got != dialect.Postgres {
		t.Errorf("ParsedDBType = %v, want Postgres", got)
	}
	if got := cfg.ParsedIsolation(); got != bench.IsolationSerializable {
		t.Errorf("ParsedIsolation = %v, want Serializable", got)
	}

	kind0, err := cfg.Phases[0].ParsedKind()
	if err != nil || kind0 != txmodel.Throughput {
		t.Errorf("phase 0 kind = %v, err=%v, want Throughput", kind0, err)
	}
	if cfg.Phases[0].Weights["Read"] != 95 {
		t.Errorf("phase 0 weight[Read] = %d, want 95", cfg.Phases[0].Weights["Read"])
	}
	if got := cfg.Phases[0].ParsedDuration(); got != 5*time.Second {
		t.Errorf("phase 0 duration = %v, want 5s", got)
	}
	if state, err := cfg.Phases[0].ParsedState(); err != nil || state != txmodel.Measure {
		t.Errorf("phase 0 state = %v, err=%v, want Measure", state, err)
	}

	kind1, err := cfg.Phases[1].ParsedKind()
	if err != nil || kind1 != txmodel.Latency {
		t.Errorf("phase 1 kind = %v, err=%v, want Latency", kind1, err)
	}
	if len(cfg.Phases[1].QueryList) != 3 {
		t.Errorf("phase 1 query list len = %d, want 3", len(cfg.Phases[1].QueryList))
	}
}

func TestLoad_UnknownFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error loading a missing file")
	}
}

func TestPhaseSpec_UnknownKindErrors(t *testing.T) {
	p := PhaseSpec{Kind: "bogus"}
	if _, err := p.ParsedKind(); err == nil {
		t.Fatal("expected an error for an unrecognized phase kind")
	}
}

func TestPhaseSpec_UnknownStateErrors(t *testing.T) {
	p := PhaseSpec{State: "bogus"}
	if _, err := p.ParsedState(); err == nil {
		t.Fatal("expected an error for an unrecognized phase state")
	}
}

func TestWorkloadConfig_ToBenchConfiguration(t *testing.T) {
	cfg := WorkloadConfig{
		DBType:              "mysql",
		Isolation:           "read_committed",
		TerminalCount:       4,
		RecordAbortMessages: true,
	}
	bc := cfg.ToBenchConfiguration()
	if bc.DBType != "mysql" || bc.TerminalCount != 4 || !bc.RecordAbortMessages {
		t.Errorf("ToBenchConfiguration = %+v, mismatched source fields", bc)
	}
	if bc.Isolation != bench.IsolationReadCommitted {
		t.Errorf("Isolation = %v, want ReadCommitted", bc.Isolation)
	}
}

func TestParsedDBType_UnknownDefaultsToUnknown(t *testing.T) {
	cfg := WorkloadConfig{DBType: "some-made-up-engine"}
	if got := cfg.ParsedDBType(); got != dialect.Unknown {
		t.Errorf("ParsedDBType = %v, want Unknown", got)
	}
}
