package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "WORKER_CONCURRENCY"

// Count returns the number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier is workers per CPU; conversions use 0.5 because each job
// runs a multi-threaded encoder.
//
// The limit parameter caps the worker count. Use 0 for no limit.
//
// Can be overridden with the WORKER_CONCURRENCY environment variable.
func Count(multiplier float64, limit int) int {
	if count, ok := override(); ok {
		if limit > 0 && count > limit {
			return limit
		}
		return count
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

func override() (int, bool) {
	value := os.Getenv(EnvOverride)
	if value == "" {
		return 0, false
	}
	count, err := strconv.Atoi(value)
	if err != nil || count <= 0 {
		return 0, false
	}
	return count, true
}

// ForConversions returns the number of concurrent conversion jobs. Each job
// runs ffmpeg, which is itself multi-threaded, so two CPUs are budgeted
// per job.
func ForConversions(limit int) int {
	return Count(0.5, limit)
}

// ThreadsPerWorker splits the available CPUs evenly across workers, never
// returning less than 1.
func ThreadsPerWorker(workers int) int {
	if workers < 1 {
		workers = 1
	}
	return max(runtime.GOMAXPROCS(0)/workers, 1)
}
