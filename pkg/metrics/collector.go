package metrics

import "time"

// StatSource is the minimal surface Collector polls periodically. A
// *dbfs.FsContext (or anything exposing the same accounting) satisfies
// it without pkg/metrics needing to import pkg/dbfs.
type StatSource interface {
	InodeCounts() map[string]uint64
	DataLogFreeBytes() int64
}

// Collector periodically samples gauge-shaped filesystem state that
// isn't naturally updated at the point of an operation (live inode
// counts by type, remaining data log space).
type Collector struct {
	source StatSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source StatSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every interval.
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for typ, count := range c.source.InodeCounts() {
		InodesTotal.WithLabelValues(typ).Set(float64(count))
	}
	DataLogFreeBytes.Set(float64(c.source.DataLogFreeBytes()))
}
