package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "registry.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInstanceLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := &Instance{
		ID:         "inst-1",
		Profile:    "support-bot",
		TargetKind: "kubernetes",
		State:      "not-installed",
	}
	if err := store.UpsertInstance(ctx, inst); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}

	got, err := store.GetInstance(ctx, "support-bot", "kubernetes")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.ID != "inst-1" || got.State != "not-installed" {
		t.Errorf("unexpected instance: %+v", got)
	}

	if err := store.UpdateInstanceState(ctx, "inst-1", "running", "ws://10.1.2.3:18789"); err != nil {
		t.Fatalf("UpdateInstanceState: %v", err)
	}
	got, err = store.GetInstance(ctx, "support-bot", "kubernetes")
	if err != nil {
		t.Fatalf("GetInstance after update: %v", err)
	}
	if got.State != "running" || got.Endpoint != "ws://10.1.2.3:18789" {
		t.Errorf("update not applied: %+v", got)
	}

	if err := store.DeleteInstance(ctx, "inst-1"); err != nil {
		t.Fatalf("DeleteInstance: %v", err)
	}
	if _, err := store.GetInstance(ctx, "support-bot", "kubernetes"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := &Instance{ID: "inst-1", Profile: "p", TargetKind: "local", State: "stopped"}
	if err := store.UpsertInstance(ctx, inst); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	inst.State = "running"
	if err := store.UpsertInstance(ctx, inst); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := store.ListInstances(ctx)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(all))
	}
	if all[0].State != "running" {
		t.Errorf("state = %s, want running", all[0].State)
	}
}

func TestUpdateMissingInstance(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateInstanceState(context.Background(), "no-such-id", "running", "")
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestEventsNewestFirstAndCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := &Instance{ID: "inst-1", Profile: "p", TargetKind: "local", State: "running"}
	if err := store.UpsertInstance(ctx, inst); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}

	for _, op := range []string{"install", "configure", "start"} {
		if err := store.RecordEvent(ctx, &Event{InstanceID: "inst-1", Operation: op, Success: true}); err != nil {
			t.Fatalf("RecordEvent %s: %v", op, err)
		}
	}

	events, err := store.ListEvents(ctx, "inst-1", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Operation != "start" || events[1].Operation != "configure" {
		t.Errorf("expected newest first, got %s then %s", events[0].Operation, events[1].Operation)
	}

	if err := store.DeleteInstance(ctx, "inst-1"); err != nil {
		t.Fatalf("DeleteInstance: %v", err)
	}
	events, err = store.ListEvents(ctx, "inst-1", 10)
	if err != nil {
		t.Fatalf("ListEvents after delete: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected events to cascade on delete, got %d", len(events))
	}
}
