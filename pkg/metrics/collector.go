package metrics

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// AccountsCounter reports the number of stored accounts.
type AccountsCounter interface {
	Count() uint64
}

// HeightProvider reports the current hash-chain height.
type HeightProvider interface {
	Height() uint64
}

// Collector periodically refreshes gauges that are sampled rather than
// updated inline: account count, chain height and runtime statistics.
type Collector struct {
	metrics  *Metrics
	accounts AccountsCounter
	chain    HeightProvider
	interval time.Duration
	running  atomic.Bool
}

// NewCollector creates a collector. accounts and chain may be nil.
func NewCollector(m *Metrics, accounts AccountsCounter, chain HeightProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:  m,
		accounts: accounts,
		chain:    chain,
		interval: interval,
	}
}

// Collect samples every source once.
func (c *Collector) Collect() {
	if c.accounts != nil {
		c.metrics.AccountsCount.SetUint64(c.accounts.Count())
	}
	if c.chain != nil {
		c.metrics.LedgerHeight.SetUint64(c.chain.Height())
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.metrics.MemoryBytes.SetUint64(mem.Alloc)
	c.metrics.Goroutines.SetUint64(uint64(runtime.NumGoroutine()))
}

// Run collects immediately and then on every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	if c.running.Swap(true) {
		return
	}
	defer c.running.Store(false)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}
