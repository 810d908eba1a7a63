// Package checkpoint keeps a local history of migration runs in
// SQLite under the operator's data directory. The warehouse-side
// pipeline_progress table is the authority for resume; this history
// exists so status and history commands work without touching the
// warehouse.
package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// State manages the local run history in SQLite.
type State struct {
	db *sql.DB
}

// Run is one recorded invocation of the engine.
type Run struct {
	ID          string
	Kind        string // "dataset" or "graph"
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
}

// DatasetResult is one table's outcome within a run.
type DatasetResult struct {
	RunID     string
	Dataset   string
	Total     int64
	Inserted  int64
	Conflicts int64
	Resumed   int64
	Status    string
	Error     string
}

// New opens (creating if needed) the run history database in dataDir.
func New(dataDir string) (*State, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "faomigrate.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	s := &State{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return s, nil
}

func (s *State) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL DEFAULT 'running'
	);

	CREATE TABLE IF NOT EXISTS run_datasets (
		run_id TEXT REFERENCES runs(id),
		dataset TEXT NOT NULL,
		total_rows INTEGER DEFAULT 0,
		inserted_rows INTEGER DEFAULT 0,
		conflict_rows INTEGER DEFAULT 0,
		resumed_rows INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT,
		PRIMARY KEY (run_id, dataset)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the history database.
func (s *State) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a run and returns its id.
func (s *State) CreateRun(kind string) (string, error) {
	id := uuid.New().String()[:8]
	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, started_at, status)
		VALUES (?, ?, datetime('now'), 'running')
	`, id, kind)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run finished with the given status.
func (s *State) CompleteRun(id, status string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, completed_at = datetime('now')
		WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("recording run completion: %w", err)
	}
	return nil
}

// RecordDatasetResult stores one dataset's outcome for a run.
func (s *State) RecordDatasetResult(r DatasetResult) error {
	_, err := s.db.Exec(`
		INSERT INTO run_datasets (run_id, dataset, total_rows, inserted_rows, conflict_rows, resumed_rows, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, dataset) DO UPDATE SET
			total_rows = excluded.total_rows,
			inserted_rows = excluded.inserted_rows,
			conflict_rows = excluded.conflict_rows,
			resumed_rows = excluded.resumed_rows,
			status = excluded.status,
			error_message = excluded.error_message
	`, r.RunID, r.Dataset, r.Total, r.Inserted, r.Conflicts, r.Resumed, r.Status, r.Error)
	if err != nil {
		return fmt.Errorf("recording dataset result: %w", err)
	}
	return nil
}

// GetLastRun returns the most recent run, or nil when none exists.
func (s *State) GetLastRun() (*Run, error) {
	var r Run
	var startedAt string
	var completedAt sql.NullString
	err := s.db.QueryRow(`
		SELECT id, kind, started_at, completed_at, status
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1
	`).Scan(&r.ID, &r.Kind, &startedAt, &completedAt, &r.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last run: %w", err)
	}
	r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAt)
	if completedAt.Valid {
		t, _ := time.Parse("2006-01-02 15:04:05", completedAt.String)
		r.CompletedAt = &t
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *State) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, started_at, completed_at, status
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &startedAt, &completedAt, &r.Status); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAt)
		if completedAt.Valid {
			t, _ := time.Parse("2006-01-02 15:04:05", completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DatasetResults returns the per-dataset outcomes for a run.
func (s *State) DatasetResults(runID string) ([]DatasetResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, dataset, total_rows, inserted_rows, conflict_rows, resumed_rows, status, COALESCE(error_message, '')
		FROM run_datasets WHERE run_id = ? ORDER BY dataset
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading run results: %w", err)
	}
	defer rows.Close()

	var results []DatasetResult
	for rows.Next() {
		var r DatasetResult
		if err := rows.Scan(&r.RunID, &r.Dataset, &r.Total, &r.Inserted, &r.Conflicts, &r.Resumed, &r.Status, &r.Error); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
