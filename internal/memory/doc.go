// Package memory keeps the conversion workers inside a container's memory
// limit.
//
// [ApplyLimit] sets the Go soft memory limit from MEMORY_LIMIT (bytes, for
// example from the Kubernetes Downward API) and MEMORY_RATIO. The default
// ratio is 0.5 because ffmpeg runs in child processes that the Go runtime
// cannot account for. An explicit GOMEMLIMIT always wins.
//
// [Monitor] samples heap use and implements the job queue's gate: while
// usage is above the pause threshold, [Monitor.Wait] holds a worker back
// before it starts the next conversion, and releases it once usage drops
// below the resume threshold.
//
//	memory.ApplyLimit(cfg.MemoryLimit, cfg.MemoryRatio)
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
package memory
