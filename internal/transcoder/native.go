package transcoder

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support

	"media-shrinker/internal/logging"
	"media-shrinker/internal/metrics"
)

// MaxImagePixels is the largest image (width * height) decoded in process.
// A 20MP image uses ~80MB in RGBA; anything bigger is left to ffmpeg or vips.
const MaxImagePixels = 20_000_000

// Native encodes images in process with the imaging library. It handles the
// formats registered with the image package (JPEG, PNG, GIF, WebP, BMP,
// TIFF) and reports ErrUnsupportedInput for everything else.
type Native struct {
	MaxPixels int
}

// NewNative creates a Native encoder with the default pixel limit.
func NewNative() *Native {
	return &Native{MaxPixels: MaxImagePixels}
}

// EncodeImage decodes src with EXIF auto-orientation, fits it within
// MaxEdge and writes a JPEG to dst.
func (n *Native) EncodeImage(ctx context.Context, src, dst string, p ImageParams) (size int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	defer func() {
		metrics.TranscoderDuration.WithLabelValues("native", "image").Observe(time.Since(start).Seconds())
		metrics.TranscoderInvocationsTotal.WithLabelValues("native", "image", metrics.StatusLabel(err)).Inc()
	}()

	if err := n.checkDimensions(src); err != nil {
		return 0, err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}

	if p.MaxEdge > 0 {
		b := img.Bounds()
		if b.Dx() > p.MaxEdge || b.Dy() > p.MaxEdge {
			img = imaging.Fit(img, p.MaxEdge, p.MaxEdge, imaging.Lanczos)
		}
	}
	img = flatten(img)

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	encErr := imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(p.Quality))
	closeErr := out.Close()
	if encErr != nil {
		return 0, fmt.Errorf("encode jpeg: %w", encErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close output: %w", closeErr)
	}

	logging.Debug("Native encode %s -> %s (q=%d, edge=%d)", filepath.Base(src), filepath.Base(dst), p.Quality, p.MaxEdge)
	return fileSize(dst)
}

// checkDimensions rejects images the standard decoders cannot read or that
// exceed the pixel limit, without decoding the pixel data.
func (n *Native) checkDimensions(src string) error {
	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", src, err)
		}
	}()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}
	if limit := n.MaxPixels; limit > 0 && cfg.Width*cfg.Height > limit {
		return fmt.Errorf("%w: %s image %dx%d exceeds %d pixels", ErrUnsupportedInput, format, cfg.Width, cfg.Height, limit)
	}
	return nil
}

// flatten composites images with transparency onto white, since JPEG has no
// alpha channel.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
