// Package metrics periodically samples the RIB and computes install/churn
// rates for the REST stats endpoint and live subscribers.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upa-network/flowchaind/internal/rib"
)

// Snapshot is a point-in-time sample of RIB size with the flow churn rate
// computed from the delta against the previous sample.
type Snapshot struct {
	Timestamp time.Time

	FlowCount int

	// InstallRate is flows-per-second added since the previous snapshot; it
	// goes negative when the RIB shrank (net withdrawals outpaced adds).
	InstallRate float64
}

// Collector periodically samples a RIB's flow count.
type Collector struct {
	log      *zap.Logger
	rib      *rib.RIB
	interval time.Duration

	mu       sync.RWMutex
	current  *Snapshot
	previous *Snapshot

	subsMu sync.RWMutex
	subs   []chan<- *Snapshot
}

// NewCollector creates a metrics collector sampling r every interval.
func NewCollector(log *zap.Logger, r *rib.RIB, interval time.Duration) *Collector {
	return &Collector{log: log, rib: r, interval: interval}
}

// Subscribe returns a channel that receives every future snapshot. Slow
// subscribers have snapshots dropped rather than blocking the collector.
func (c *Collector) Subscribe(bufSize int) <-chan *Snapshot {
	ch := make(chan *Snapshot, bufSize)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

// Run starts the sampling loop. Blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.Info("metrics collector started", zap.Duration("interval", c.interval))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("metrics collector stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	now := time.Now()
	snap := &Snapshot{Timestamp: now, FlowCount: c.rib.Len()}

	c.mu.Lock()
	prev := c.current
	if prev != nil {
		dt := snap.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt > 0 {
			snap.InstallRate = float64(snap.FlowCount-prev.FlowCount) / dt
		}
	}
	c.previous = prev
	c.current = snap
	c.mu.Unlock()

	c.subsMu.RLock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	c.subsMu.RUnlock()
}

// Current returns the most recent snapshot, or nil if Run has not sampled
// yet.
func (c *Collector) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Previous returns the snapshot before Current, or nil.
func (c *Collector) Previous() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.previous
}
