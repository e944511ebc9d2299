// Package journal keeps a local history of startup runs in sqlite. It is
// best-effort bookkeeping: the orchestrator logs and ignores journal errors,
// so a broken journal can never block a deploy.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Journal is a sqlite-backed run log.
type Journal struct{ db *sql.DB }

// Run is one orchestrator invocation.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Steps      []Step
}

// Step is one recorded step within a run.
type Step struct {
	Name     string
	Status   string
	Duration time.Duration
	Detail   string
}

// Open creates the journal database and applies its schema.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := j.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply journal schema: %w", err)
	}
	return nil
}

func (j *Journal) Close() error { return j.db.Close() }

// StartRun records a new run and returns its id.
func (j *Journal) StartRun(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (started_at, status) VALUES (?, ?)",
		time.Now().UTC().Format(time.RFC3339Nano), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun marks a run terminal.
func (j *Journal) FinishRun(ctx context.Context, id int64, status string) error {
	_, err := j.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, status = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339Nano), status, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordStep appends a step result to a run.
func (j *Journal) RecordStep(ctx context.Context, runID int64, s Step) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO steps (run_id, name, status, duration_ms, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, s.Name, s.Status, s.Duration.Milliseconds(), s.Detail,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first, with their steps in
// recorded order.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, started_at, COALESCE(finished_at, ''), status FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		steps, err := j.runSteps(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Steps = steps
	}
	return runs, nil
}

func (j *Journal) runSteps(ctx context.Context, runID int64) ([]Step, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT name, status, duration_ms, detail FROM steps WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()
	var steps []Step
	for rows.Next() {
		var s Step
		var ms int64
		if err := rows.Scan(&s.Name, &s.Status, &ms, &s.Detail); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
