package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createSession(t *testing.T, store *SQLiteStore, repo string, startedAt time.Time) *Session {
	t.Helper()
	session := &Session{
		Repo:          repo,
		Pipeline:      "shop",
		StagingApp:    "shop-staging",
		ProductionApp: "shop-prod",
		Operator:      "dev@example.com",
		StartedAt:     startedAt,
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return session
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration should be a no-op: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	ctx := context.Background()

	store, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	session := createSession(t, store, "/src/shop", time.Now())
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() after reopen error = %v", err)
	}
	if got.Repo != "/src/shop" {
		t.Errorf("Repo = %q", got.Repo)
	}
}

func TestSessionCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	session := createSession(t, store, "/src/shop", time.Now())
	if session.ID == "" {
		t.Fatal("CreateSession did not assign an ID")
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.EndedAt != nil || got.ExitCode != nil {
		t.Errorf("new session already ended: %+v", got)
	}

	if err := store.UpdateSessionTargets(ctx, session.ID, "shop2", "s2", "p2"); err != nil {
		t.Fatalf("UpdateSessionTargets() error = %v", err)
	}

	msg := "ambiguous state"
	if err := store.EndSession(ctx, session.ID, 6, &msg); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	got, err = store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ExitCode == nil || *got.ExitCode != 6 {
		t.Errorf("ExitCode = %v, want 6", got.ExitCode)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("Error = %v", got.Error)
	}
	if got.EndedAt == nil {
		t.Error("EndedAt not set")
	}
	if got.Pipeline != "shop2" || got.ProductionApp != "p2" {
		t.Errorf("targets not updated: %+v", got)
	}
}

func TestSessionNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession() error = %v, want ErrNotFound", err)
	}
	if err := store.EndSession(ctx, "missing", 0, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("EndSession() error = %v, want ErrNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		createSession(t, store, "/src/shop", base.Add(time.Duration(i)*time.Hour))
	}

	sessions, err := store.ListSessions(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if !sessions[0].StartedAt.After(sessions[1].StartedAt) {
		t.Errorf("sessions not newest first: %v, %v", sessions[0].StartedAt, sessions[1].StartedAt)
	}
}

func TestActions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	shop := createSession(t, store, "/src/shop", base)
	blog := createSession(t, store, "/src/blog", base)

	actions := []*Action{
		{SessionID: shop.ID, Action: "push_to_staging", Phase: "release_branch_staged", ReleaseTag: "v1.1.0", Outcome: "succeeded", StartedAt: base.Add(time.Minute), Duration: 1500 * time.Millisecond},
		{SessionID: shop.ID, Action: "finish_release", Phase: "release_branch_live_on_staging", ReleaseTag: "v1.1.0", Outcome: "failed", ExitCode: 1, Message: "merge conflict", StartedAt: base.Add(2 * time.Minute)},
		{SessionID: blog.ID, Action: "promote", Phase: "final_staging_verification", ReleaseTag: "v0.4.0", Outcome: "denied", Message: "CI FAILURE", StartedAt: base.Add(3 * time.Minute)},
	}
	for _, a := range actions {
		if err := store.RecordAction(ctx, a); err != nil {
			t.Fatalf("RecordAction() error = %v", err)
		}
		if a.ID == "" {
			t.Fatal("RecordAction did not assign an ID")
		}
	}

	all, err := store.ListActions(ctx, ActionFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d actions, want 3", len(all))
	}
	if all[0].Action.Action != "promote" || all[0].Repo != "/src/blog" {
		t.Errorf("first entry = %+v", all[0])
	}
	if all[2].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", all[2].Duration)
	}

	repo := "/src/shop"
	failed := "failed"
	tests := []struct {
		name   string
		filter ActionFilter
		want   int
	}{
		{name: "by repo", filter: ActionFilter{Repo: &repo}, want: 2},
		{name: "by outcome", filter: ActionFilter{Outcome: &failed}, want: 1},
		{name: "by repo and outcome", filter: ActionFilter{Repo: &repo, Outcome: &failed}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListActions(ctx, tt.filter, 10, 0)
			if err != nil {
				t.Fatalf("ListActions() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d actions, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRecordActionRequiresSession(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordAction(context.Background(), &Action{
		SessionID: "missing",
		Action:    "promote",
		Phase:     "final_staging_verification",
		Outcome:   "succeeded",
		StartedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestObservations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	session := createSession(t, store, "/src/shop", time.Now())

	for _, phase := range []string{"release_branch_staged", "release_branch_live_on_staging"} {
		obs := &Observation{
			SessionID:  session.ID,
			Phase:      phase,
			ReleaseTag: "v2.0.0",
			Pointers:   `{"develop":"abc"}`,
			ObservedAt: time.Now(),
		}
		if err := store.RecordObservation(ctx, obs); err != nil {
			t.Fatalf("RecordObservation() error = %v", err)
		}
		if obs.ID == 0 {
			t.Error("observation ID not set")
		}
	}

	got, err := store.ListObservations(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListObservations() error = %v", err)
	}
	if len(got) != 2 || got[1].Phase != "release_branch_live_on_staging" {
		t.Errorf("observations = %+v", got)
	}
}

func TestDeleteSessionsBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	oldSession := createSession(t, store, "/src/shop", old)
	createSession(t, store, "/src/shop", recent)

	if err := store.RecordAction(ctx, &Action{
		SessionID: oldSession.ID, Action: "promote", Phase: "final_staging_verification",
		Outcome: "succeeded", StartedAt: old,
	}); err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	n, err := store.DeleteSessionsBefore(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeleteSessionsBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d sessions, want 1", n)
	}

	actions, err := store.ListActions(ctx, ActionFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("actions of deleted session survived: %d", len(actions))
	}
}
