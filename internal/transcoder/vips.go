package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/davidbyttow/govips/v2/vips"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/metrics"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes the libvips library
// This should be called once at startup
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	vips.LoggingSettings(vipsLogHandler(logging.GetLevel()))

	// One operation at a time keeps memory bounded; the worker pool provides parallelism.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// vipsLogHandler maps the application log level onto libvips' own level and
// routes its messages through the logging package.
func vipsLogHandler(level logging.LogLevel) (func(string, vips.LogLevel, string), vips.LogLevel) {
	switch level {
	case logging.LevelDebug:
		return func(domain string, lvl vips.LogLevel, msg string) {
			switch lvl {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}, vips.LogLevelInfo
	case logging.LevelWarn:
		return func(domain string, lvl vips.LogLevel, msg string) {
			if lvl >= vips.LogLevelError {
				logging.Error("[%s] %s", domain, msg)
			}
		}, vips.LogLevelError
	case logging.LevelError:
		return func(domain string, lvl vips.LogLevel, msg string) {
			if lvl >= vips.LogLevelCritical {
				logging.Error("[%s] %s", domain, msg)
			}
		}, vips.LogLevelCritical
	default:
		return func(domain string, lvl vips.LogLevel, msg string) {
			switch lvl {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}, vips.LogLevelWarning
	}
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// Vips encodes images with libvips, which adds HEIC, AVIF and very large
// inputs through decode-time shrinking.
type Vips struct{}

// NewVips creates a Vips encoder. InitVips must have been called.
func NewVips() *Vips {
	return &Vips{}
}

// EncodeImage implements ImageEncoder.
func (v *Vips) EncodeImage(ctx context.Context, src, dst string, p ImageParams) (size int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !IsVipsAvailable() {
		return 0, fmt.Errorf("%w: libvips not available", ErrUnsupportedInput)
	}

	start := time.Now()
	defer func() {
		metrics.TranscoderDuration.WithLabelValues("vips", "image").Observe(time.Since(start).Seconds())
		metrics.TranscoderInvocationsTotal.WithLabelValues("vips", "image", metrics.StatusLabel(err)).Inc()
	}()

	// Default import params apply EXIF auto-orientation.
	ref, err := vips.LoadImageFromFile(src, vips.NewImportParams())
	if err != nil {
		return 0, fmt.Errorf("%w: vips load: %v", ErrUnsupportedInput, err)
	}
	defer ref.Close()

	width, height := ref.Width(), ref.Height()
	if w, h := fitWithin(width, height, p.MaxEdge); w != width || h != height {
		if err := ref.Thumbnail(w, h, vips.InterestingNone); err != nil {
			return 0, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	if ref.HasAlpha() {
		if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return 0, fmt.Errorf("vips flatten failed: %w", err)
		}
	}

	data, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        p.Quality,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	if err != nil {
		return 0, fmt.Errorf("vips export failed: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}

	logging.Debug("Vips encode %s (%dx%d) -> %s (q=%d, edge=%d, %d bytes)",
		filepath.Base(src), width, height, filepath.Base(dst), p.Quality, p.MaxEdge, len(data))
	return int64(len(data)), nil
}

// fitWithin scales width x height down so the longer side is at most maxEdge,
// preserving the aspect ratio. Images already within bounds are unchanged.
func fitWithin(width, height, maxEdge int) (int, int) {
	if maxEdge <= 0 || (width <= maxEdge && height <= maxEdge) {
		return width, height
	}
	if width >= height {
		return maxEdge, max(1, height*maxEdge/width)
	}
	return max(1, width*maxEdge/height), maxEdge
}
