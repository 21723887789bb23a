package memory

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/metrics"
)

// ErrStopped is returned by Wait once the monitor has been stopped.
var ErrStopped = errors.New("memory monitor stopped")

// Config holds the pause and resume thresholds.
type Config struct {
	// LimitBytes is the reference limit; 0 uses the Go soft memory limit.
	LimitBytes int64

	// PauseRatio holds new conversions back once heap use reaches this
	// fraction of the limit.
	PauseRatio float64

	// ResumeRatio lets them start again once heap use drops below it.
	ResumeRatio float64

	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the service.
func DefaultConfig() Config {
	return Config{
		PauseRatio:    0.85,
		ResumeRatio:   0.7,
		CheckInterval: 2 * time.Second,
	}
}

// Monitor samples heap use and holds conversions back while it is high.
// A Monitor without a limit never pauses.
type Monitor struct {
	config Config
	limit  int64
	read   func() uint64

	mu      sync.Mutex
	current uint64
	paused  bool
	resume  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a Monitor. Call Start to begin sampling.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		limit = CurrentLimit()
	}
	if limit == 0 {
		logging.Info("  Memory backpressure: DISABLED (no memory limit)")
	} else {
		logging.Info("  Memory backpressure: pause at %.0f%%, resume below %.0f%% of %s",
			config.PauseRatio*100, config.ResumeRatio*100, formatBytes(limit))
	}

	return &Monitor{
		config: config,
		limit:  limit,
		read:   heapAlloc,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start samples memory every CheckInterval until Stop is called.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases any waiters with ErrStopped.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) check() {
	current := m.read()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = current
	usage := float64(current) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case !m.paused && usage >= m.config.PauseRatio:
		logging.Warn("Memory at %.1f%% of limit, holding new conversions", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.ResumeRatio:
		logging.Info("Memory at %.1f%% of limit, resuming conversions", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait returns immediately unless the monitor is paused, in which case it
// blocks until memory recovers, ctx ends or the monitor is stopped.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	resume := m.resume
	m.mu.Unlock()

	logging.Debug("Conversion waiting for memory to recover")
	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stop:
		return ErrStopped
	}
}

// Paused reports whether new conversions are currently held back.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled heap use as a fraction of the limit, or 0
// when there is no limit.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.current) / float64(m.limit)
}
