// Package report builds the aggregated, reporter-ready output of one
// completed run (spec.md §3.1's RunReport) and exports it as JSON or
// persists it to SQLite, mirroring the teacher's
// storage.Storage/aggregator.AggregatedSuite split.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jpequegn/txnbench/internal/txmodel"
	"github.com/jpequegn/txnbench/internal/worker"
)

// TransactionSummary is one transaction type's aggregated outcome counts.
type TransactionSummary struct {
	TypeID  int            `json:"type_id"`
	Name    string         `json:"name"`
	Success int64          `json:"success"`
	Abort   int64          `json:"abort"`
	Retry   int64          `json:"retry"`
	Errors  int64          `json:"errors"`
	Aborts  map[string]int64 `json:"abort_messages,omitempty"`
}

// RunReport is the serialized, aggregated output of one completed run.
type RunReport struct {
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at"`
	DBType      string                `json:"db_type"`
	WorkerCount int                   `json:"worker_count"`
	Transactions []TransactionSummary `json:"transactions"`
	Samples     []txmodel.Sample      `json:"samples,omitempty"`
}

// Build aggregates a set of per-worker Stats (already merged into one via
// Stats.Merge by the Driver) plus the catalog's type names into a
// RunReport.
func Build(startedAt, finishedAt time.Time, dbType string, workerCount int, stats *worker.Stats, typeNames map[int]string) RunReport {
	ids := stats.Success.KeySet()
	ids = append(ids, stats.Abort.KeySet()...)
	ids = append(ids, stats.Retry.KeySet()...)
	ids = append(ids, stats.Errors.KeySet()...)

	seen := make(map[int]bool)
	var summaries []TransactionSummary
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		aborts := make(map[string]int64)
		for _, msg := range stats.AbortMessages.ForType(id).KeySet() {
			aborts[msg] = stats.AbortMessages.ForType(id).Get(msg)
		}

		summaries = append(summaries, TransactionSummary{
			TypeID:  id,
			Name:    typeNames[id],
			Success: stats.Success.Get(id),
			Abort:   stats.Abort.Get(id),
			Retry:   stats.Retry.Get(id),
			Errors:  stats.Errors.Get(id),
			Aborts:  aborts,
		})
	}

	return RunReport{
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		DBType:       dbType,
		WorkerCount:  workerCount,
		Transactions: summaries,
		Samples:      stats.Recorder.Iterate(),
	}
}

// ToJSON renders r as indented JSON, the format `txnbench report` reads
// back.
func (r RunReport) ToJSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshaling RunReport: %w", err)
	}
	return b, nil
}

// FromJSON parses a RunReport previously written by ToJSON.
func FromJSON(data []byte) (RunReport, error) {
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("report: unmarshaling RunReport: %w", err)
	}
	return r, nil
}
