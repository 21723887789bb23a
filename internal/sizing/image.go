package sizing

import (
	"context"
	"fmt"
	"path/filepath"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/transcoder"
)

// Image ladder constants.
const (
	ImageStartQuality    = 85
	ImageQualityStep     = 10
	ImageQualityFloor    = 40
	ImageMaxEdge         = 1920
	ImageFallbackMaxEdge = 1280
	ImageFallbackQuality = 30
)

// ImageLadder returns the JPEG quality ladder: qualities from
// ImageStartQuality down to (but not below) ImageQualityFloor at
// ImageMaxEdge, followed by an unconditional smaller fallback.
func ImageLadder() Ladder[transcoder.ImageParams] {
	var ladder Ladder[transcoder.ImageParams]
	for q := ImageStartQuality; q >= ImageQualityFloor; q -= ImageQualityStep {
		ladder = append(ladder, Rung[transcoder.ImageParams]{
			Name:   fmt.Sprintf("q%d@%d", q, ImageMaxEdge),
			Params: transcoder.ImageParams{Quality: q, MaxEdge: ImageMaxEdge},
		})
	}
	return append(ladder, Rung[transcoder.ImageParams]{
		Name:   fmt.Sprintf("fallback q%d@%d", ImageFallbackQuality, ImageFallbackMaxEdge),
		Params: transcoder.ImageParams{Quality: ImageFallbackQuality, MaxEdge: ImageFallbackMaxEdge},
		Final:  true,
	})
}

// Result describes the output a targeter left at its destination path.
type Result struct {
	Path      string
	Size      int64
	MetTarget bool
	Rung      string
	Attempts  []Attempt
	// DurationSeconds and VideoKbps are set for videos only.
	DurationSeconds float64
	VideoKbps       int
}

// ImageTargeter re-encodes images until they fit the budget.
type ImageTargeter struct {
	encoder     transcoder.ImageEncoder
	targetBytes int64
	ladder      Ladder[transcoder.ImageParams]
}

// NewImageTargeter creates an ImageTargeter using the standard ladder.
func NewImageTargeter(encoder transcoder.ImageEncoder, targetBytes int64) *ImageTargeter {
	return &ImageTargeter{
		encoder:     encoder,
		targetBytes: targetBytes,
		ladder:      ImageLadder(),
	}
}

// TargetSize encodes src into dst, overwriting dst on every rung, and
// returns the accepted result.
func (t *ImageTargeter) TargetSize(ctx context.Context, src, dst string) (*Result, error) {
	outcome, err := Run(ctx, t.ladder, t.targetBytes, func(ctx context.Context, p transcoder.ImageParams) (int64, error) {
		size, err := t.encoder.EncodeImage(ctx, src, dst, p)
		if err == nil {
			logging.Debug("Image %s q=%d edge=%d -> %d bytes", filepath.Base(src), p.Quality, p.MaxEdge, size)
		}
		return size, err
	})
	if err != nil {
		return nil, fmt.Errorf("image targeting: %w", err)
	}

	if !outcome.MetTarget {
		logging.Warn("Image %s still %d bytes after %d attempts (budget %d)", filepath.Base(src), outcome.Size, len(outcome.Attempts), t.targetBytes)
	}
	return &Result{
		Path:      dst,
		Size:      outcome.Size,
		MetTarget: outcome.MetTarget,
		Rung:      outcome.Rung,
		Attempts:  outcome.Attempts,
	}, nil
}
