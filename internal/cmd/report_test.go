package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jpequegn/txnbench/internal/report"
)

func sampleReport() report.RunReport {
	return report.RunReport{
		StartedAt:   time.Unix(1000, 0),
		FinishedAt:  time.Unix(1010, 0),
		DBType:      "sqlite",
		WorkerCount: 2,
		Transactions: []report.TransactionSummary{
			{TypeID: 1, Name: "Read", Success: 10},
			{TypeID: 2, Name: "Update", Success: 8, Abort: 1, Aborts: map[string]int64{"synthetic_ycsb_update_abort": 1}},
		},
	}
}

func TestWriteReport_ToFileProducesDecodableJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	r := sampleReport()

	if err := writeReport(r, path); err != nil {
		t.Fatalf("writeReport: %v", err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got report.RunReport
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.DBType != r.DBType || got.WorkerCount != r.WorkerCount {
		t.Errorf("round-tripped report = %+v, want %+v", got, r)
	}
	if len(got.Transactions) != 2 {
		t.Fatalf("len(Transactions) = %d, want 2", len(got.Transactions))
	}
}

func TestRenderReport_MissingInputErrors(t *testing.T) {
	// cobra always executes from the root command, so the arguments are
	// set there, with the subcommand name first.
	rootCmd.SetArgs([]string{"report", "--input", filepath.Join(t.TempDir(), "does-not-exist.json")})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected an error for a missing input file")
	}
}
