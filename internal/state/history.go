package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// History records one row per completed run. It is informational only:
// nothing in the ingestion path reads it back.
type History struct {
	db *sql.DB
}

// Run is one completed ingestion run.
type Run struct {
	ID         string
	StartedAt  time.Time
	Listed     int
	Skipped    int
	Processed  int
	NewestDate time.Time
	Duration   time.Duration
}

// OpenHistory opens or creates the run history database.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return h, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) migrate() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			listed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			processed INTEGER NOT NULL,
			newest_date TIMESTAMP,
			duration_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`)
	return err
}

// Record inserts a completed run. The generated run id is returned.
func (h *History) Record(run Run) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}

	var newest any
	if !run.NewestDate.IsZero() {
		newest = run.NewestDate.UTC().Format(time.RFC3339)
	}

	_, err := h.db.Exec(
		`INSERT INTO runs (run_id, started_at, listed, skipped, processed, newest_date, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, run.StartedAt.UTC().Format(time.RFC3339),
		run.Listed, run.Skipped, run.Processed,
		newest, run.Duration.Milliseconds(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Recent returns the most recent runs, newest first.
func (h *History) Recent(limit int) ([]Run, error) {
	rows, err := h.db.Query(
		`SELECT run_id, started_at, listed, skipped, processed, newest_date, duration_ms
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			newestDate sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &startedAt, &r.Listed, &r.Skipped, &r.Processed, &newestDate, &durationMs); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if newestDate.Valid {
			r.NewestDate, _ = time.Parse(time.RFC3339, newestDate.String)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
