package sizing

import "math"

const (
	// DefaultAudioKbps is the AAC bitrate reserved for the audio track.
	DefaultAudioKbps = 64

	// FallbackVideoKbps is used when the duration is unknown or zero.
	FallbackVideoKbps = 800

	// MinVideoKbps is the lowest video bitrate ever requested.
	MinVideoKbps = 100
)

// EstimateVideoKbps returns the video bitrate that spends the byte budget
// over the clip duration after reserving audioKbps. Decimal kilobits are
// used throughout (1 kbit = 1000 bits).
func EstimateVideoKbps(targetBytes int64, durationSeconds float64, audioKbps int) int {
	if durationSeconds <= 0 || math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		return FallbackVideoKbps
	}
	totalKbits := float64(targetBytes) * 8 / 1000
	kbps := int(math.Floor(totalKbits/durationSeconds)) - audioKbps
	return max(MinVideoKbps, kbps)
}
