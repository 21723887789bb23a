package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-shrinker/internal/blobstore"
	"media-shrinker/internal/logging"
)

// StatusBlobs is the object storage used to answer status queries.
type StatusBlobs interface {
	Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// StatusView is the status response for one source key. Exactly one shape
// is used per situation:
//
//	{ready:false}                                 nothing known yet
//	{ready:false, state:"processing"}             job running
//	{ready:false, failed:true, error}             job failed
//	{ready:true, outputKey, contentType, size, url}
type StatusView struct {
	Ready       bool   `json:"ready"`
	State       State  `json:"state,omitempty"`
	Failed      bool   `json:"failed,omitempty"`
	Error       string `json:"error,omitempty"`
	OutputKey   string `json:"outputKey,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        *int64 `json:"size,omitempty"`
	URL         string `json:"url,omitempty"`
	Note        string `json:"note,omitempty"`
	OverTarget  bool   `json:"overTarget,omitempty"`
}

// StatusResolver answers status queries from the job record, falling back
// to object storage when no record exists.
type StatusResolver struct {
	store       Store
	blobs       StatusBlobs
	targetBytes int64
	urlTTL      time.Duration
}

// NewStatusResolver creates a StatusResolver.
func NewStatusResolver(store Store, blobs StatusBlobs, targetBytes int64, urlTTL time.Duration) *StatusResolver {
	if targetBytes <= 0 {
		targetBytes = DefaultTargetBytes
	}
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &StatusResolver{
		store:       store,
		blobs:       blobs,
		targetBytes: targetBytes,
		urlTTL:      urlTTL,
	}
}

// Resolve returns the status of the job for sourceKey.
func (r *StatusResolver) Resolve(ctx context.Context, sourceKey string) (*StatusView, error) {
	rec, err := r.store.Get(ctx, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("read status for %s: %w", sourceKey, err)
	}

	if rec != nil {
		switch rec.State {
		case StateProcessing:
			return &StatusView{Ready: false, State: StateProcessing}, nil
		case StateFailure:
			return &StatusView{Ready: false, Failed: true, Error: rec.Error}, nil
		case StateCompleted:
			view, err := r.ready(ctx, rec.Output, rec.OutputType, rec.OutputSize)
			if err != nil {
				return nil, err
			}
			view.Note = rec.Note
			view.OverTarget = rec.OverTarget
			return view, nil
		default:
			logging.Warn("Unknown job state %q for %s, falling back to storage lookup", rec.State, sourceKey)
		}
	}

	return r.fromStorage(ctx, sourceKey)
}

// fromStorage finds an output written without a status record, e.g. by an
// older deployment or after the record expired.
func (r *StatusResolver) fromStorage(ctx context.Context, sourceKey string) (*StatusView, error) {
	for _, key := range CandidateOutputKeys(sourceKey) {
		info, err := r.blobs.Head(ctx, key)
		if err != nil {
			if !errors.Is(err, blobstore.ErrNotFound) {
				logging.Warn("Status lookup of %s failed: %v", key, err)
			}
			continue
		}
		return r.ready(ctx, key, info.ContentType, info.Size)
	}

	info, err := r.blobs.Head(ctx, sourceKey)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			logging.Warn("Status lookup of %s failed: %v", sourceKey, err)
		}
		return &StatusView{Ready: false}, nil
	}
	if info.Size > r.targetBytes {
		return &StatusView{Ready: false}, nil
	}

	view, err := r.ready(ctx, sourceKey, info.ContentType, info.Size)
	if err != nil {
		return nil, err
	}
	view.Note = fmt.Sprintf("original already <= %s", formatBudget(r.targetBytes))
	return view, nil
}

func (r *StatusResolver) ready(ctx context.Context, key, contentType string, size int64) (*StatusView, error) {
	url, err := r.blobs.PresignDownload(ctx, key, r.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return &StatusView{
		Ready:       true,
		OutputKey:   key,
		ContentType: contentType,
		Size:        &size,
		URL:         url,
	}, nil
}
