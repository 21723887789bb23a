package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"media-shrinker/internal/blobstore"
	"media-shrinker/internal/jobs"
)

type fakeUploads struct {
	mu sync.Mutex

	createKey   string
	createType  string
	createErr   error
	presignKey  string
	presignPart int32
	presignTTL  time.Duration
	presignErr  error
	completeKey string
	completeID  string
	parts       []blobstore.CompletedPart
	completeErr error
}

func (f *fakeUploads) CreateMultipartUpload(_ context.Context, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createKey, f.createType = key, contentType
	if f.createErr != nil {
		return "", f.createErr
	}
	return "upload-123", nil
}

func (f *fakeUploads) PresignPartUpload(_ context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presignKey, f.presignPart, f.presignTTL = key, partNumber, ttl
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://bucket.example/" + key + "?uploadId=" + uploadID, nil
}

func (f *fakeUploads) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []blobstore.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeKey, f.completeID, f.parts = key, uploadID, parts
	return f.completeErr
}

type enqueued struct {
	key     string
	trigger string
}

type fakeQueue struct {
	mu    sync.Mutex
	calls []enqueued
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, key, trigger string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueued{key: key, trigger: trigger})
	if f.err != nil {
		return "", f.err
	}
	return jobs.TaskID(key), nil
}

type fakeStatus struct {
	views map[string]*jobs.StatusView
	err   error
}

func (f *fakeStatus) Resolve(_ context.Context, key string) (*jobs.StatusView, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.views[key]; ok {
		return v, nil
	}
	return &jobs.StatusView{}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

var errBackend = errors.New("backend unavailable")

func newTestHandlers() (*Handlers, *fakeUploads, *fakeQueue, *fakeStatus) {
	uploads := &fakeUploads{}
	queue := &fakeQueue{}
	status := &fakeStatus{views: map[string]*jobs.StatusView{}}
	h := New(uploads, queue, status, Config{Bucket: "media"})
	return h, uploads, queue, status
}
