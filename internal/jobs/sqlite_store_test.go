package jobs

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T, ttl time.Duration) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.Context(), filepath.Join(t.TempDir(), "data", "status.db"), ttl)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t, time.Hour)
	ctx := t.Context()
	const key = "uploads/a.mov"

	rec, err := store.Get(ctx, key)
	if err != nil || rec != nil {
		t.Fatalf("Get() on empty store = %+v, %v", rec, err)
	}

	if err := store.Put(ctx, key, &Record{State: StateProcessing, Source: key, Message: "conversion started"}); err != nil {
		t.Fatalf("Put(processing) error = %v", err)
	}
	rec, err = store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.State != StateProcessing || rec.Message != "conversion started" {
		t.Errorf("record = %+v", rec)
	}
	if rec.UpdatedAt.IsZero() || rec.ExpiresAt.Sub(rec.UpdatedAt) != time.Hour {
		t.Errorf("timestamps not stamped: %v / %v", rec.UpdatedAt, rec.ExpiresAt)
	}

	done := &Record{State: StateCompleted, Source: key, Output: "processed/a.mp4", OutputSize: 42}
	if err := store.Put(ctx, key, done); err != nil {
		t.Fatalf("Put(completed) error = %v", err)
	}

	err = store.Put(ctx, key, &Record{State: StateFailure, Source: key, Error: "late"})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("Put after terminal error = %v, want ErrTerminalState", err)
	}

	rec, err = store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.State != StateCompleted || rec.Output != "processed/a.mp4" || rec.OutputSize != 42 {
		t.Errorf("terminal record changed: %+v", rec)
	}
}

func TestSQLiteStoreRejectsInvalidRecord(t *testing.T) {
	store := newTestSQLiteStore(t, time.Hour)

	err := store.Put(t.Context(), "k", &Record{State: StateCompleted, Source: "k"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if rec, _ := store.Get(t.Context(), "k"); rec != nil {
		t.Errorf("invalid record was written: %+v", rec)
	}
}

func TestSQLiteStoreExpiry(t *testing.T) {
	store := newTestSQLiteStore(t, time.Minute)
	ctx := t.Context()

	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.Put(ctx, "old", &Record{State: StateFailure, Source: "old", Error: "x"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := store.Put(ctx, "fresh", &Record{State: StateProcessing, Source: "fresh"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if rec, err := store.Get(ctx, "old"); err != nil || rec != nil {
		t.Errorf("expired record returned: %+v, %v", rec, err)
	}

	// An expired terminal record no longer blocks a new job for the key.
	if err := store.Put(ctx, "old", &Record{State: StateProcessing, Source: "old"}); err != nil {
		t.Errorf("Put over expired record error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	n, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PurgeExpired() = %d, want 2", n)
	}
}

func TestSQLiteStoreWithoutTTL(t *testing.T) {
	store := newTestSQLiteStore(t, 0)
	ctx := t.Context()

	if err := store.Put(ctx, "k", &Record{State: StateProcessing, Source: "k"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	store.now = func() time.Time { return time.Now().Add(365 * 24 * time.Hour) }

	n, err := store.PurgeExpired(ctx)
	if err != nil || n != 0 {
		t.Errorf("PurgeExpired() = %d, %v; records without ttl must be kept", n, err)
	}
	if rec, err := store.Get(ctx, "k"); err != nil || rec == nil {
		t.Errorf("Get() = %+v, %v", rec, err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSQLiteStoreEmptyKey(t *testing.T) {
	store := newTestSQLiteStore(t, time.Hour)
	if _, err := store.Get(t.Context(), ""); err == nil {
		t.Error("expected error for empty key")
	}
}
