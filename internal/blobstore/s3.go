package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/metrics"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Config holds S3 connection settings. Endpoint and UsePathStyle allow
// S3-compatible stores such as MinIO or Cloudflare R2.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectInfo is the metadata returned by Head.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// CompletedPart identifies one uploaded part of a multipart upload.
type CompletedPart struct {
	ETag       string
	PartNumber int32
}

// S3Store is the blob store backed by Amazon S3 or a compatible service.
type S3Store struct {
	bucket     string
	client     *s3.Client
	presigner  *s3.PresignClient
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Store loads the AWS configuration (environment, shared config or
// static keys) and creates the S3 clients.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		bucket:     cfg.Bucket,
		client:     client,
		presigner:  s3.NewPresignClient(client),
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

// Bucket returns the bucket this store operates on.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// CreateMultipartUpload starts a multipart upload and returns its upload ID.
func (s *S3Store) CreateMultipartUpload(ctx context.Context, key, contentType string) (uploadID string, err error) {
	defer observe("create_multipart", time.Now(), &err)

	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload for %q: %w", key, err)
	}
	return aws.ToString(out.UploadId), nil
}

// PresignPartUpload returns a URL the client can PUT one part to.
func (s *S3Store) PresignPartUpload(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (url string, err error) {
	defer observe("presign_part", time.Now(), &err)

	req, err := s.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign part %d of %q: %w", partNumber, key, err)
	}
	return req.URL, nil
}

// CompleteMultipartUpload assembles the uploaded parts. Parts may be given in
// any order; S3 requires them sorted by part number.
func (s *S3Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (err error) {
	defer observe("complete_multipart", time.Now(), &err)

	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range SortParts(parts) {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		})
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload for %q: %w", key, err)
	}
	return nil
}

// Head returns object metadata, or ErrNotFound.
func (s *S3Store) Head(ctx context.Context, key string) (info *ObjectInfo, err error) {
	defer observe("head", time.Now(), &err)

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("head %q: %w", key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Download writes the object to path using concurrent ranged GETs.
func (s *S3Store) Download(ctx context.Context, key, path string) (err error) {
	defer observe("download", time.Now(), &err)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	n, err := s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%q: %w", key, ErrNotFound)
		}
		return fmt.Errorf("download %q: %w", key, err)
	}

	logging.Debug("Downloaded %s (%d bytes) to %s", key, n, filepath.Base(path))
	return nil
}

// PutFile uploads the file at path to key.
func (s *S3Store) PutFile(ctx context.Context, path, key, contentType string) (err error) {
	defer observe("upload", time.Now(), &err)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close upload file %s: %v", path, err)
		}
	}()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %q: %w", key, err)
	}
	return nil
}

// PresignDownload returns a time-limited GET URL for key.
func (s *S3Store) PresignDownload(ctx context.Context, key string, ttl time.Duration) (url string, err error) {
	defer observe("presign_get", time.Now(), &err)

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign download of %q: %w", key, err)
	}
	return req.URL, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %q: %w", s.bucket, err)
	}
	return nil
}

// SortParts returns a copy of parts ordered by part number.
func SortParts(parts []CompletedPart) []CompletedPart {
	sorted := make([]CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	return sorted
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

func observe(operation string, start time.Time, err *error) {
	status := metrics.StatusLabel(*err)
	if errors.Is(*err, ErrNotFound) {
		status = "not_found"
	}
	metrics.BlobOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	metrics.BlobOperationsTotal.WithLabelValues(operation, status).Inc()
}
