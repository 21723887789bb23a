package transcoder

import (
	"context"
	"errors"
)

var (
	// ErrFFmpegNotFound is returned when the ffmpeg or ffprobe binary cannot be located.
	ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")

	// ErrUnsupportedInput is returned by an in-process encoder that cannot
	// decode a file. Chain treats it as a signal to try the next encoder.
	ErrUnsupportedInput = errors.New("unsupported input for encoder")
)

// ImageParams describes one JPEG re-encode.
type ImageParams struct {
	// Quality is on the 1..100 JPEG scale, higher is better.
	Quality int
	// MaxEdge caps the longer side in pixels. Smaller images are never upscaled.
	MaxEdge int
}

// VideoParams describes one H.264/AAC MP4 re-encode.
type VideoParams struct {
	VideoKbps   int
	MaxrateKbps int
	BufsizeKbps int
	AudioKbps   int
	// MaxEdge caps the longer side in pixels; 0 keeps the source resolution.
	MaxEdge int
	Preset  string
	Profile string
	Level   string
	PixFmt  string
}

// ImageEncoder re-encodes the image at src into a JPEG at dst and returns the
// size of dst in bytes. dst is overwritten.
type ImageEncoder interface {
	EncodeImage(ctx context.Context, src, dst string, p ImageParams) (int64, error)
}

// VideoEncoder re-encodes the video at src into an MP4 at dst and returns the
// size of dst in bytes. dst is overwritten.
type VideoEncoder interface {
	EncodeVideo(ctx context.Context, src, dst string, p VideoParams) (int64, error)
	ProbeDuration(ctx context.Context, src string) (float64, error)
}
