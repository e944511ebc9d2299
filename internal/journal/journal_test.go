package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	id, err := j.StartRun(ctx)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	steps := []Step{
		{Name: "migrate", Status: StatusSucceeded, Duration: 120 * time.Millisecond, Detail: "migrated to version 2"},
		{Name: "collectstatic", Status: StatusSucceeded, Duration: 40 * time.Millisecond, Detail: "37 files"},
	}
	for _, s := range steps {
		if err := j.RecordStep(ctx, id, s); err != nil {
			t.Fatalf("record step: %v", err)
		}
	}
	if err := j.FinishRun(ctx, id, StatusSucceeded); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := j.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.Status != StatusSucceeded || r.FinishedAt.IsZero() {
		t.Errorf("run not finished: %+v", r)
	}
	if len(r.Steps) != 2 || r.Steps[0].Name != "migrate" || r.Steps[1].Name != "collectstatic" {
		t.Errorf("steps out of order: %+v", r.Steps)
	}
	if r.Steps[0].Detail != "migrated to version 2" {
		t.Errorf("step detail lost: %+v", r.Steps[0])
	}
}

func TestFailedRunRecorded(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	id, _ := j.StartRun(ctx)
	_ = j.RecordStep(ctx, id, Step{Name: "migrate", Status: StatusFailed, Detail: "dial tcp: refused"})
	_ = j.FinishRun(ctx, id, StatusFailed)

	runs, err := j.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if runs[0].Status != StatusFailed {
		t.Errorf("expected failed run, got %s", runs[0].Status)
	}
	if runs[0].Steps[0].Status != StatusFailed {
		t.Errorf("expected failed step, got %+v", runs[0].Steps[0])
	}
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id, _ := j.StartRun(ctx)
		_ = j.FinishRun(ctx, id, StatusSucceeded)
	}
	runs, err := j.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID < runs[1].ID {
		t.Errorf("expected newest first, got %d then %d", runs[0].ID, runs[1].ID)
	}
}
