package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *RecentStore {
	t.Helper()
	store, err := OpenRecentStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTouchAndRecentOrder(t *testing.T) {
	store := openTestStore(t)

	if err := store.Touch(RecentSession{ServerURL: "http://a", SessionID: "s1", Title: "first"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := store.Touch(RecentSession{ServerURL: "http://a", SessionID: "s2", Title: "second"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Touch(RecentSession{ServerURL: "http://b", SessionID: "other"}); err != nil {
		t.Fatal(err)
	}

	recent, err := store.Recent("http://a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(recent))
	}
	if recent[0].SessionID != "s2" || recent[1].SessionID != "s1" {
		t.Fatalf("unexpected order: %+v", recent)
	}

	last, err := store.Last("http://a")
	if err != nil {
		t.Fatal(err)
	}
	if last != "s2" {
		t.Fatalf("last=%q", last)
	}
}

func TestTouchUpdatesMetadata(t *testing.T) {
	store := openTestStore(t)

	if err := store.Touch(RecentSession{ServerURL: "http://a", SessionID: "s1", Title: "old", Model: "m1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Touch(RecentSession{ServerURL: "http://a", SessionID: "s1", Title: "new", Model: "m2"}); err != nil {
		t.Fatal(err)
	}

	recent, err := store.Recent("http://a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("upsert created a duplicate: %+v", recent)
	}
	if recent[0].Title != "new" || recent[0].Model != "m2" {
		t.Fatalf("metadata not updated: %+v", recent[0])
	}
}

func TestForgetAndEmpty(t *testing.T) {
	store := openTestStore(t)

	if last, err := store.Last("http://a"); err != nil || last != "" {
		t.Fatalf("empty store: last=%q err=%v", last, err)
	}

	if err := store.Touch(RecentSession{ServerURL: "http://a", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Forget("http://a", "s1"); err != nil {
		t.Fatal(err)
	}
	recent, err := store.Recent("http://a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Fatalf("session not forgotten: %+v", recent)
	}

	if err := store.Touch(RecentSession{}); err == nil {
		t.Fatal("expected validation error")
	}
}
