package stats

import (
	"sync"
	"time"

	"cantrace/internal/engine"
	"cantrace/internal/models"
)

// Collector periodically samples capture-session statistics from the
// engine's counters.
type Collector struct {
	engine    *engine.Engine
	interval  time.Duration
	statsChan chan models.SessionStats
	stopChan  chan struct{}
	stopOnce  sync.Once

	mu         sync.Mutex
	latest     models.SessionStats
	lastTotal  uint64
	lastSample time.Time
}

// NewCollector creates a new statistics collector
func NewCollector(e *engine.Engine, interval time.Duration) *Collector {
	return &Collector{
		engine:     e,
		interval:   interval,
		statsChan:  make(chan models.SessionStats, 10),
		stopChan:   make(chan struct{}),
		lastSample: time.Now(),
	}
}

// Start begins collecting statistics
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the statistics collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

// GetStatsChannel returns the channel for receiving statistics
func (c *Collector) GetStatsChannel() <-chan models.SessionStats {
	return c.statsChan
}

// Latest returns the most recent sample.
func (c *Collector) Latest() models.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// collectLoop periodically collects statistics
func (c *Collector) collectLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Collect immediately on start
	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

// collect samples the engine counters into one SessionStats point.
func (c *Collector) collect() {
	now := time.Now()
	total := c.engine.TotalFrames()

	c.mu.Lock()
	elapsed := now.Sub(c.lastSample).Seconds()
	var fps float64
	if elapsed > 0 {
		fps = float64(total-c.lastTotal) / elapsed
	}
	c.lastTotal = total
	c.lastSample = now

	stat := models.SessionStats{
		Timestamp:       now,
		UptimeMs:        float64(now.Sub(c.engine.SessionStart())) / float64(time.Millisecond),
		TotalFrames:     total,
		FramesPerSecond: fps,
		UniqueIDs:       c.engine.UniqueIDs(),
		LiveIDs:         c.engine.LiveIDs(),
		LogSize:         c.engine.LogLen(),
		PendingSize:     c.engine.PendingLen(),
		Rollovers:       c.engine.Rollovers(),
		DroppedLines:    c.engine.DroppedLines(),
		InvalidIDs:      c.engine.InvalidIDs(),
		State:           c.engine.State().String(),
	}
	c.latest = stat
	c.mu.Unlock()

	select {
	case c.statsChan <- stat:
	default:
		// Consumer lagging; drop the sample rather than block capture.
	}
}
