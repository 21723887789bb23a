package metrics

import (
	"time"

	"media-shrinker/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() (Stats, error)
}

// Stats holds the current queue statistics
type Stats struct {
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
	Completed int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats, err := c.statsProvider.GetStats()
	if err != nil {
		logging.Warn("Failed to collect queue stats: %v", err)
		return
	}

	QueueTasks.WithLabelValues("pending").Set(float64(stats.Pending))
	QueueTasks.WithLabelValues("active").Set(float64(stats.Active))
	QueueTasks.WithLabelValues("scheduled").Set(float64(stats.Scheduled))
	QueueTasks.WithLabelValues("retry").Set(float64(stats.Retry))
	QueueTasks.WithLabelValues("archived").Set(float64(stats.Archived))
	QueueTasks.WithLabelValues("completed").Set(float64(stats.Completed))

	logging.Debug("Metrics collected: pending=%d, active=%d, retry=%d, archived=%d",
		stats.Pending, stats.Active, stats.Retry, stats.Archived)
}
