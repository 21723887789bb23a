package handlers

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"media-shrinker/internal/blobstore"
	"media-shrinker/internal/jobs"
)

// DefaultPartURLTTL is the lifetime of presigned part upload URLs.
const DefaultPartURLTTL = time.Hour

// Uploads is the multipart upload API of the object store.
type Uploads interface {
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignPartUpload(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []blobstore.CompletedPart) error
}

// Enqueuer schedules conversion jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, sourceKey, trigger string) (string, error)
}

// StatusSource resolves the status of a job.
type StatusSource interface {
	Resolve(ctx context.Context, sourceKey string) (*jobs.StatusView, error)
}

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds handler settings.
type Config struct {
	Bucket     string
	PartURLTTL time.Duration
}

type dependency struct {
	name   string
	pinger Pinger
}

// Handlers serves the upload, event and status API.
type Handlers struct {
	uploads    Uploads
	queue      Enqueuer
	status     StatusSource
	bucket     string
	partURLTTL time.Duration
	deps       []dependency
	validate   *validator.Validate
	startTime  time.Time
}

// New creates the handlers.
func New(uploads Uploads, queue Enqueuer, status StatusSource, cfg Config) *Handlers {
	if cfg.PartURLTTL <= 0 {
		cfg.PartURLTTL = DefaultPartURLTTL
	}
	return &Handlers{
		uploads:    uploads,
		queue:      queue,
		status:     status,
		bucket:     cfg.Bucket,
		partURLTTL: cfg.PartURLTTL,
		validate:   newValidator(),
		startTime:  time.Now(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// AddDependency registers a dependency that must answer Ping for the
// service to report ready.
func (h *Handlers) AddDependency(name string, p Pinger) {
	h.deps = append(h.deps, dependency{name: name, pinger: p})
}
