// Package store persists suite run history to SQLite so regressions in the
// review generators can be tracked across runs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"plugineval/internal/logging"
	"plugineval/internal/suite"
)

// RunStore is the run-history database.
type RunStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open initializes the SQLite database at the given path, creating the
// schema if needed.
func Open(path string) (*RunStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	s := &RunStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("run store opened at %s", path)
	return s, nil
}

func (s *RunStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			total INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			indeterminate INTEGER NOT NULL,
			all_passed INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS case_results (
			run_id TEXT NOT NULL,
			case_name TEXT NOT NULL,
			passed INTEGER NOT NULL,
			actual_verdict TEXT,
			failure_reason TEXT,
			findings_json TEXT,
			PRIMARY KEY (run_id, case_name)
		);
		CREATE INDEX IF NOT EXISTS idx_case_results_case ON case_results(case_name);
	`)
	if err != nil {
		return fmt.Errorf("migrate run store: %w", err)
	}
	return nil
}

// SaveRun persists a suite result and its per-case detail.
func (s *RunStore) SaveRun(res *suite.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, started_at, duration_ms, total, passed, failed, indeterminate, all_passed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.StartedAt.UnixMilli(), res.DurationMS,
		res.Total, res.Passed, res.Failed, res.Indeterminate, boolInt(res.AllPassed),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, cs := range res.Cases {
		findingsJSON, err := json.Marshal(cs.Findings)
		if err != nil {
			logging.StoreError("marshal findings for %s: %v", cs.CaseName, err)
			findingsJSON = []byte("[]")
		}
		_, err = tx.Exec(
			`INSERT INTO case_results (run_id, case_name, passed, actual_verdict, failure_reason, findings_json)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			res.RunID, cs.CaseName, boolInt(cs.Passed), string(cs.ActualVerdict), cs.FailureReason, string(findingsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert case result %s: %w", cs.CaseName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	logging.Store("saved run %s (%d cases)", res.RunID, len(res.Cases))
	return nil
}

// RunSummary is one row of run history.
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	Total         int
	Passed        int
	Failed        int
	Indeterminate int
	AllPassed     bool
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT run_id, started_at, total, passed, failed, indeterminate, all_passed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var startedMS int64
		var allPassed int
		if err := rows.Scan(&r.RunID, &startedMS, &r.Total, &r.Passed, &r.Failed, &r.Indeterminate, &allPassed); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMS).UTC()
		r.AllPassed = allPassed == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
