package sizing

import (
	"context"
	"fmt"
	"path/filepath"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/transcoder"
)

// Video ladder constants.
const (
	VideoPreset          = "veryfast"
	VideoProfile         = "baseline"
	VideoLevel           = "3.0"
	VideoPixFmt          = "yuv420p"
	VideoRetryKbpsFloor  = 300
	VideoRetryBufFloor   = 600
	VideoFallbackMaxEdge = 1280
)

// VideoLadder returns the two-rung ladder for an estimated bitrate: the
// estimate at source resolution, then an unconditional rung at 75% of the
// bitrate capped at VideoFallbackMaxEdge.
func VideoLadder(kbps, audioKbps int) Ladder[transcoder.VideoParams] {
	base := transcoder.VideoParams{
		AudioKbps: audioKbps,
		Preset:    VideoPreset,
		Profile:   VideoProfile,
		Level:     VideoLevel,
		PixFmt:    VideoPixFmt,
	}

	first := base
	first.VideoKbps = kbps
	first.MaxrateKbps = kbps
	first.BufsizeKbps = 2 * kbps

	retryKbps := max(VideoRetryKbpsFloor, kbps*3/4)
	second := base
	second.VideoKbps = retryKbps
	second.MaxrateKbps = retryKbps
	second.BufsizeKbps = max(VideoRetryBufFloor, kbps*3/2)
	second.MaxEdge = VideoFallbackMaxEdge

	return Ladder[transcoder.VideoParams]{
		{Name: fmt.Sprintf("%dk", kbps), Params: first},
		{Name: fmt.Sprintf("fallback %dk@%d", retryKbps, VideoFallbackMaxEdge), Params: second, Final: true},
	}
}

// VideoTargeter re-encodes videos at a bitrate derived from their duration.
type VideoTargeter struct {
	encoder     transcoder.VideoEncoder
	targetBytes int64
	audioKbps   int
}

// NewVideoTargeter creates a VideoTargeter reserving DefaultAudioKbps for audio.
func NewVideoTargeter(encoder transcoder.VideoEncoder, targetBytes int64) *VideoTargeter {
	return &VideoTargeter{
		encoder:     encoder,
		targetBytes: targetBytes,
		audioKbps:   DefaultAudioKbps,
	}
}

// TargetSize probes src, encodes it into dst and returns the accepted result.
// A probe failure is treated as an unknown duration, so the fallback bitrate
// applies and the encoder gets the final say on whether the input is usable.
func (t *VideoTargeter) TargetSize(ctx context.Context, src, dst string) (*Result, error) {
	duration, err := t.encoder.ProbeDuration(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warn("Duration probe failed for %s, using fallback bitrate: %v", filepath.Base(src), err)
		duration = 0
	}

	kbps := EstimateVideoKbps(t.targetBytes, duration, t.audioKbps)
	logging.Debug("Video %s: duration %.2fs, estimated %d kbps", filepath.Base(src), duration, kbps)

	outcome, err := Run(ctx, VideoLadder(kbps, t.audioKbps), t.targetBytes, func(ctx context.Context, p transcoder.VideoParams) (int64, error) {
		return t.encoder.EncodeVideo(ctx, src, dst, p)
	})
	if err != nil {
		return nil, fmt.Errorf("video targeting: %w", err)
	}

	if !outcome.MetTarget {
		logging.Warn("Video %s still %d bytes after %d attempts (budget %d)", filepath.Base(src), outcome.Size, len(outcome.Attempts), t.targetBytes)
	}
	return &Result{
		Path:            dst,
		Size:            outcome.Size,
		MetTarget:       outcome.MetTarget,
		Rung:            outcome.Rung,
		Attempts:        outcome.Attempts,
		DurationSeconds: duration,
		VideoKbps:       kbps,
	}, nil
}
