package jobs

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestRedisStore connects to TEST_REDIS_URL, skipping when it is unset.
func newTestRedisStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(t.Context()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return NewRedisStore(rdb, time.Minute), rdb
}

func TestJobKey(t *testing.T) {
	if got := jobKey("uploads/a.mov"); got != "media-shrinker:job:uploads/a.mov" {
		t.Errorf("jobKey() = %q", got)
	}
}

func TestRedisStoreLifecycle(t *testing.T) {
	store, rdb := newTestRedisStore(t)
	ctx := t.Context()
	key := "uploads/" + uuid.NewString() + "-a.mov"
	t.Cleanup(func() { rdb.Del(ctx, jobKey(key)) })

	if rec, err := store.Get(ctx, key); err != nil || rec != nil {
		t.Fatalf("Get() on missing key = %+v, %v", rec, err)
	}

	if err := store.Put(ctx, key, &Record{State: StateProcessing, Source: key}); err != nil {
		t.Fatalf("Put(processing) error = %v", err)
	}
	if ttl := rdb.TTL(ctx, jobKey(key)).Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}

	if err := store.Put(ctx, key, &Record{State: StateFailure, Source: key, Error: "bad input"}); err != nil {
		t.Fatalf("Put(failure) error = %v", err)
	}
	err := store.Put(ctx, key, &Record{State: StateCompleted, Source: key, Output: "processed/a.mp4"})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("Put after terminal error = %v, want ErrTerminalState", err)
	}

	rec, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.State != StateFailure || rec.Error != "bad input" {
		t.Errorf("record = %+v", rec)
	}
}

func TestRedisStoreConcurrentTerminalWrites(t *testing.T) {
	store, rdb := newTestRedisStore(t)
	ctx := t.Context()
	key := "uploads/" + uuid.NewString() + "-race.mov"
	t.Cleanup(func() { rdb.Del(ctx, jobKey(key)) })

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := &Record{State: StateCompleted, Source: key, Output: "processed/race.mp4"}
			if i%2 == 1 {
				rec = &Record{State: StateFailure, Source: key, Error: "boom"}
			}
			if err := store.Put(ctx, key, rec); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("%d terminal writes succeeded, want exactly 1", success)
	}
}
