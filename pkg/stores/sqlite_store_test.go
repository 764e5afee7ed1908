package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore returned %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init returned %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Fatal("empty path accepted")
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:        "run-1",
		Blueprint: "web-stack",
		Mode:      RunModeApply,
		Status:    RunStatusRunning,
		Summary:   "Plan: 2 to create.",
		StartedAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun returned %v", err)
	}

	for _, rec := range []ActionRecord{
		{RunID: "run-1", Resource: "web-vm", Action: "create", Status: "succeeded"},
		{RunID: "run-1", Resource: "db-vm", Action: "create", Status: "failed", Reason: "task failed"},
	} {
		rec := rec
		if err := store.RecordAction(ctx, &rec); err != nil {
			t.Fatalf("RecordAction returned %v", err)
		}
	}

	if err := store.FinishRun(ctx, "run-1", RunStatusFailed, "1 action(s) failed"); err != nil {
		t.Fatalf("FinishRun returned %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun returned %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Error != "1 action(s) failed" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt still nil after FinishRun")
	}
	if got.Blueprint != "web-stack" || got.Mode != RunModeApply {
		t.Errorf("run = %+v", got)
	}

	actions, err := store.ListActions(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListActions returned %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].Resource != "web-vm" || actions[1].Resource != "db-vm" {
		t.Errorf("action order = [%s, %s]", actions[0].Resource, actions[1].Resource)
	}
	if actions[1].Reason != "task failed" {
		t.Errorf("Reason = %q", actions[1].Reason)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"old", "middle", "new"} {
		err := store.CreateRun(ctx, &Run{
			ID:        id,
			Blueprint: "bp",
			Mode:      RunModeApply,
			Status:    RunStatusSucceeded,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateRun(%s) returned %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns returned %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want limit of 2", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "middle" {
		t.Errorf("order = [%s, %s], want [new, middle]", runs[0].ID, runs[1].ID)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun(context.Background(), "ghost"); err == nil {
		t.Fatal("GetRun of unknown id succeeded")
	}
}

func TestFinishRunNotFound(t *testing.T) {
	store := newTestStore(t)
	if err := store.FinishRun(context.Background(), "ghost", RunStatusSucceeded, ""); err == nil {
		t.Fatal("FinishRun of unknown id succeeded")
	}
}
