package jobs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"media-shrinker/internal/blobstore"
	"media-shrinker/internal/sizing"
)

// memStore is an in-memory Store that keeps the history of written states.
type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
	history map[string][]State
	getErr  error
	putErr  map[State]error
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]*Record),
		history: make(map[string][]State),
		putErr:  make(map[State]error),
	}
}

func (m *memStore) Get(ctx context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) Put(ctx context.Context, key string, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putErr[record.State]; err != nil {
		return err
	}
	if err := checkTransition(key, m.records[key], record); err != nil {
		return err
	}
	record.stamp(time.Now(), time.Hour)
	cp := *record
	m.records[key] = &cp
	m.history[key] = append(m.history[key], record.State)
	return nil
}

func (m *memStore) states(key string) []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history[key]...)
}

type object struct {
	data        []byte
	contentType string
}

// fakeBlobs is an in-memory object store.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]object
	headErr error
	putErr  error
	puts    []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string]object)}
}

func (f *fakeBlobs) add(key string, size int, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = object{data: make([]byte, size), contentType: contentType}
}

func (f *fakeBlobs) Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	obj, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, blobstore.ErrNotFound)
	}
	return &blobstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (f *fakeBlobs) Download(ctx context.Context, key, path string) error {
	f.mu.Lock()
	obj, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%q: %w", key, blobstore.ErrNotFound)
	}
	return os.WriteFile(path, obj.data, 0o644)
}

func (f *fakeBlobs) PutFile(ctx context.Context, path, key, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = object{data: data, contentType: contentType}
	f.puts = append(f.puts, key)
	return nil
}

func (f *fakeBlobs) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://bucket.example/" + key + "?expires=" + ttl.String(), nil
}

// fakeTargeter writes an output of a fixed size, or fails.
type fakeTargeter struct {
	size     int
	attempts int
	err      error
	hook     func()
	calls    int
	lastSrc  string
}

func (f *fakeTargeter) TargetSize(ctx context.Context, src, dst string) (*sizing.Result, error) {
	f.calls++
	f.lastSrc = src
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(dst, make([]byte, f.size), 0o644); err != nil {
		return nil, err
	}
	attempts := make([]sizing.Attempt, max(f.attempts, 1))
	return &sizing.Result{Path: dst, Size: int64(f.size), Attempts: attempts}, nil
}
