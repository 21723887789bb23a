package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"

	"media-shrinker/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest is left to ffmpeg child processes and libvips.
const DefaultMemoryRatio = 0.5

// LimitResult describes how the Go soft memory limit was set.
type LimitResult struct {
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ApplyLimit sets the Go soft memory limit to containerLimit*ratio. A
// GOMEMLIMIT already present in the environment is left alone, and a
// non-positive containerLimit leaves the runtime default in place.
func ApplyLimit(containerLimit int64, ratio float64) LimitResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := LimitResult{Source: "none"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = limit
		}
		logging.Info("  GOMEMLIMIT set via environment: %s", env)
		return result
	}

	if containerLimit <= 0 {
		logging.Debug("  MEMORY_LIMIT not set, Go memory limit left at runtime default")
		return LimitResult{Source: "none"}
	}

	if ratio <= 0 || ratio > 1 {
		logging.Warn("  MEMORY_RATIO %.2f out of range (0.0-1.0], using %.2f", ratio, DefaultMemoryRatio)
		ratio = DefaultMemoryRatio
	}

	limit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(limit)

	logging.Info("  Go memory limit: %s (%.0f%% of %s)", formatBytes(limit), ratio*100, formatBytes(containerLimit))
	return LimitResult{
		Source:         "MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		GoMemLimit:     limit,
		Ratio:          ratio,
	}
}

// CurrentLimit returns the Go soft memory limit, or 0 when none is set.
func CurrentLimit() int64 {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		return limit
	}
	return 0
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
