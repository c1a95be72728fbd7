package metrics

import (
	"time"
)

// Sample is one reading of the gauges the collector maintains
type Sample struct {
	QueueDepth    int
	DirtyEntities int
	CacheEntries  int
	SyncStatus    string
}

// Source supplies samples to the collector
type Source interface {
	MetricsSample() Sample
}

// Collector periodically copies a Source's sample into the gauges
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect takes one sample
func (c *Collector) Collect() {
	s := c.source.MetricsSample()

	QueueDepth.Set(float64(s.QueueDepth))
	DirtyEntities.Set(float64(s.DirtyEntities))
	CacheEntries.Set(float64(s.CacheEntries))
	if s.SyncStatus != "" {
		SetSyncStatus(s.SyncStatus)
	}
}
