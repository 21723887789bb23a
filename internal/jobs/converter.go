package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-shrinker/internal/blobstore"
	"media-shrinker/internal/logging"
	"media-shrinker/internal/mediatypes"
	"media-shrinker/internal/metrics"
	"media-shrinker/internal/sizing"
)

// DefaultTargetBytes is the output budget: 5 MiB.
const DefaultTargetBytes int64 = 5 * 1024 * 1024

// BlobStore is the object storage the converter reads from and writes to.
type BlobStore interface {
	Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error)
	Download(ctx context.Context, key, path string) error
	PutFile(ctx context.Context, path, key, contentType string) error
}

// SizeTargeter re-encodes src into dst until it fits a budget.
type SizeTargeter interface {
	TargetSize(ctx context.Context, src, dst string) (*sizing.Result, error)
}

// ConverterConfig configures a Converter.
type ConverterConfig struct {
	TargetBytes int64
	// WorkDir is the parent of per-job workspaces; empty uses os.TempDir.
	WorkDir string
}

// Converter runs one conversion job: processing -> completed | failure.
type Converter struct {
	store       Store
	blobs       BlobStore
	images      SizeTargeter
	videos      SizeTargeter
	targetBytes int64
	workDir     string
	classify    func(path, declaredContentType string) mediatypes.Kind
}

// NewConverter creates a Converter.
func NewConverter(store Store, blobs BlobStore, images, videos SizeTargeter, cfg ConverterConfig) (*Converter, error) {
	if store == nil {
		return nil, errors.New("status store is nil")
	}
	if blobs == nil {
		return nil, errors.New("blob store is nil")
	}
	if images == nil || videos == nil {
		return nil, errors.New("image and video targeters are required")
	}
	if cfg.TargetBytes <= 0 {
		cfg.TargetBytes = DefaultTargetBytes
	}
	return &Converter{
		store:       store,
		blobs:       blobs,
		images:      images,
		videos:      videos,
		targetBytes: cfg.TargetBytes,
		workDir:     cfg.WorkDir,
		classify:    mediatypes.Classify,
	}, nil
}

// Run converts the object at sourceKey. It is safe to call more than once
// for the same key: a job that already reached a terminal state is not
// repeated. Conversion errors are recorded as a failure and returned.
func (c *Converter) Run(ctx context.Context, sourceKey string) error {
	if sourceKey == "" {
		return errors.New("source key is required")
	}

	existing, err := c.store.Get(ctx, sourceKey)
	if err != nil {
		return fmt.Errorf("read status for %s: %w", sourceKey, err)
	}
	if existing != nil && existing.State.IsTerminal() {
		logging.Info("Skipping %s: job already %s", sourceKey, existing.State)
		metrics.ConversionJobsTotal.WithLabelValues(kindLabel(existing.Kind), "duplicate").Inc()
		return nil
	}

	if err := c.store.Put(ctx, sourceKey, &Record{
		State:   StateProcessing,
		Source:  sourceKey,
		Message: "conversion started",
	}); err != nil {
		if errors.Is(err, ErrTerminalState) {
			logging.Info("Skipping %s: finished by another delivery", sourceKey)
			metrics.ConversionJobsTotal.WithLabelValues("unknown", "duplicate").Inc()
			return nil
		}
		return fmt.Errorf("mark %s processing: %w", sourceKey, err)
	}

	metrics.ConversionJobsInProgress.Inc()
	defer metrics.ConversionJobsInProgress.Dec()

	start := time.Now()
	logging.Info("Conversion started for %s", sourceKey)

	record, kind, err := c.convert(ctx, sourceKey)
	if err == nil {
		err = c.store.Put(ctx, sourceKey, record)
		if errors.Is(err, ErrTerminalState) {
			logging.Info("Discarding result for %s: finished by another delivery", sourceKey)
			metrics.ConversionJobsTotal.WithLabelValues(kindLabel(string(kind)), "duplicate").Inc()
			return nil
		}
		if err != nil {
			err = fmt.Errorf("mark %s completed: %w", sourceKey, err)
		}
	}
	elapsed := time.Since(start)
	metrics.ConversionJobDuration.WithLabelValues(kindLabel(string(kind))).Observe(elapsed.Seconds())

	if err != nil {
		logging.Error("Conversion failed for %s after %v: %v", sourceKey, elapsed.Round(time.Millisecond), err)
		metrics.ConversionJobsTotal.WithLabelValues(kindLabel(string(kind)), "failure").Inc()
		c.fail(ctx, sourceKey, kind, err)
		return err
	}

	outcome := "completed"
	if record.Output == sourceKey {
		outcome = "passthrough"
	}
	metrics.ConversionJobsTotal.WithLabelValues(kindLabel(string(kind)), outcome).Inc()
	logging.Info("Conversion %s for %s in %v: %s (%d bytes, %d attempts)",
		outcome, sourceKey, elapsed.Round(time.Millisecond), record.Output, record.OutputSize, record.Attempts)
	return nil
}

// convert performs the work between the processing and terminal writes. The
// returned kind is empty when the failure happened before classification.
func (c *Converter) convert(ctx context.Context, sourceKey string) (*Record, mediatypes.Kind, error) {
	info, err := c.blobs.Head(ctx, sourceKey)
	if err != nil {
		return nil, "", fmt.Errorf("inspect source: %w", err)
	}

	if info.Size <= c.targetBytes {
		return &Record{
			State:      StateCompleted,
			Source:     sourceKey,
			Output:     sourceKey,
			OutputSize: info.Size,
			OutputType: contentTypeOr(info.ContentType, mediatypes.ContentTypeDefault),
			Note:       fmt.Sprintf("original already <= %s", formatBudget(c.targetBytes)),
		}, "", nil
	}

	workspace, err := os.MkdirTemp(c.workDir, "job-*")
	if err != nil {
		return nil, "", fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logging.Warn("failed to remove workspace %s: %v", workspace, err)
		}
	}()

	src := filepath.Join(workspace, "source"+safeExt(sourceKey))
	if err := c.blobs.Download(ctx, sourceKey, src); err != nil {
		return nil, "", fmt.Errorf("download source: %w", err)
	}

	kind := c.classify(src, info.ContentType)
	targeter := c.videos
	if kind == mediatypes.KindImage {
		targeter = c.images
	}
	logging.Debug("Classified %s as %s (%d bytes)", sourceKey, kind, info.Size)

	dst := filepath.Join(workspace, "output"+mediatypes.OutputExtension(kind))
	result, err := targeter.TargetSize(ctx, src, dst)
	if err != nil {
		return nil, kind, err
	}

	outputKey := OutputKey(sourceKey, kind)
	contentType := mediatypes.OutputContentType(kind)
	if err := c.blobs.PutFile(ctx, result.Path, outputKey, contentType); err != nil {
		return nil, kind, fmt.Errorf("upload output: %w", err)
	}

	out, err := c.blobs.Head(ctx, outputKey)
	if err != nil {
		return nil, kind, fmt.Errorf("inspect output: %w", err)
	}

	metrics.ConversionAttempts.WithLabelValues(string(kind)).Observe(float64(len(result.Attempts)))
	metrics.ConversionOutputBytes.WithLabelValues(string(kind)).Observe(float64(out.Size))
	overTarget := out.Size > c.targetBytes
	if overTarget {
		metrics.ConversionOverTargetTotal.WithLabelValues(string(kind)).Inc()
	}

	return &Record{
		State:      StateCompleted,
		Source:     sourceKey,
		Kind:       string(kind),
		Output:     outputKey,
		OutputSize: out.Size,
		OutputType: contentTypeOr(out.ContentType, contentType),
		Attempts:   len(result.Attempts),
		OverTarget: overTarget,
	}, kind, nil
}

// fail records cause as the job's failure. The write is best effort: it is
// attempted even if ctx is already cancelled, and its own error is only logged.
func (c *Converter) fail(ctx context.Context, sourceKey string, kind mediatypes.Kind, cause error) {
	if errors.Is(cause, ErrTerminalState) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := c.store.Put(ctx, sourceKey, &Record{
		State:  StateFailure,
		Source: sourceKey,
		Kind:   string(kind),
		Error:  cause.Error(),
	})
	if err != nil {
		logging.Warn("Failed to record failure for %s: %v", sourceKey, err)
	}
}

func contentTypeOr(contentType, fallback string) string {
	if contentType == "" {
		return fallback
	}
	return contentType
}

// safeExt keeps a short alphanumeric extension from key so ffmpeg can use it
// as a demuxer hint.
func safeExt(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func formatBudget(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

func kindLabel(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return kind
}
