package report

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is an optional persistence sink for RunReports, mirroring
// the teacher's storage.SQLiteStorage (schema, Init/Save/GetHistory)
// adapted to this package's RunReport shape instead of AggregatedSuite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at
// path for storing RunReports.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("report: opening store database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema if it does not already exist.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		db_type TEXT NOT NULL,
		worker_count INTEGER NOT NULL,
		report_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_db_type ON runs(db_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("report: creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists r as one row, storing the full report as JSON alongside
// queryable summary columns.
func (s *SQLiteStore) Save(r RunReport) (int64, error) {
	body, err := r.ToJSON()
	if err != nil {
		return 0, err
	}
	result, err := s.db.Exec(`
		INSERT INTO runs (started_at, finished_at, db_type, worker_count, report_json)
		VALUES (?, ?, ?, ?, ?)
	`, r.StartedAt, r.FinishedAt, r.DBType, r.WorkerCount, string(body))
	if err != nil {
		return 0, fmt.Errorf("report: inserting run: %w", err)
	}
	return result.LastInsertId()
}

// GetHistory returns up to limit most recent RunReports for dbType, most
// recent first.
func (s *SQLiteStore) GetHistory(dbType string, limit int) ([]RunReport, error) {
	rows, err := s.db.Query(`
		SELECT report_json FROM runs
		WHERE db_type = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, dbType, limit)
	if err != nil {
		return nil, fmt.Errorf("report: querying history: %w", err)
	}
	defer rows.Close()

	var out []RunReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("report: scanning history row: %w", err)
		}
		var r RunReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("report: decoding history row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
