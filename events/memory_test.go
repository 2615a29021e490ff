package events

import (
	"context"
	"testing"
	"time"
)

func TestPutListDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Put(ctx, "user-1", PersonalEvent{
		Title: "Club Meeting",
		Date:  time.Date(2025, 4, 3, 18, 30, 0, 0, time.FixedZone("ICT", 7*3600)),
	})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if id == "" {
		t.Fatal("put should mint an id")
	}

	listed, err := store.List(ctx, "user-1")
	if err != nil || len(listed) != 1 {
		t.Fatalf("list = %v err=%v", listed, err)
	}
	want := time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)
	if !listed[0].Date.Equal(want) {
		t.Errorf("date not normalized to a calendar date: %v", listed[0].Date)
	}

	other, err := store.List(ctx, "user-2")
	if err != nil || len(other) != 0 {
		t.Errorf("users must not see each other's events: %v", other)
	}

	if err := store.Delete(ctx, "user-1", id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	listed, _ = store.List(ctx, "user-1")
	if len(listed) != 0 {
		t.Errorf("event survived delete: %v", listed)
	}
}

func TestPutReplacesById(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Put(ctx, "user-1", PersonalEvent{Title: "Draft", Date: time.Now()})
	if _, err := store.Put(ctx, "user-1", PersonalEvent{ID: id, Title: "Final", Date: time.Now()}); err != nil {
		t.Fatal(err)
	}

	listed, _ := store.List(ctx, "user-1")
	if len(listed) != 1 || listed[0].Title != "Final" {
		t.Errorf("expected one replaced event, got %v", listed)
	}
}

func TestSubscribeDeliversInitialAndUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snapshots := make(chan []PersonalEvent, 8)
	unsubscribe, err := store.Subscribe(ctx, "user-1",
		func(events []PersonalEvent) { snapshots <- events },
		func(err error) { t.Errorf("unexpected subscription error: %v", err) },
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	select {
	case initial := <-snapshots:
		if len(initial) != 0 {
			t.Errorf("initial snapshot should be empty, got %v", initial)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := store.Put(ctx, "user-1", PersonalEvent{Title: "Club Meeting", Date: time.Now()}); err != nil {
		t.Fatal(err)
	}
	select {
	case updated := <-snapshots:
		if len(updated) != 1 || updated[0].Title != "Club Meeting" {
			t.Errorf("update snapshot = %v", updated)
		}
	case <-time.After(time.Second):
		t.Fatal("no update snapshot")
	}

	unsubscribe()
	unsubscribe() // safe twice

	if _, err := store.Put(ctx, "user-1", PersonalEvent{Title: "After", Date: time.Now()}); err != nil {
		t.Fatal(err)
	}
	select {
	case extra := <-snapshots:
		t.Errorf("snapshot after unsubscribe: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
