package metrics

import (
	"time"

	"descale-qc/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics of the run store.
type Stats struct {
	RunsByKind      map[string]int
	TotalRuns       int
	TotalCatalogues int
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

	stats := c.statsProvider.GetStats()

	for _, kind := range []string{"single", "multi", "dual"} {
		StoredRuns.WithLabelValues(kind).Set(float64(stats.RunsByKind[kind]))
	}
	StoredCatalogues.Set(float64(stats.TotalCatalogues))

	logging.Debug("Metrics collected: runs=%d, catalogues=%d", stats.TotalRuns, stats.TotalCatalogues)
}
