// Package metrics samples host CPU, memory, and per-interface network rates
// for the dashboard, publishing each sample on the event bus.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"

	"github.com/lavacast/lavacast/internal/events"
	"github.com/lavacast/lavacast/internal/observability"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 5 * time.Second

// NICStats is one interface's throughput over the last sample window.
type NICStats struct {
	RxMbps float64 `json:"rx_mbps"`
	TxMbps float64 `json:"tx_mbps"`
}

// Snapshot is one metrics sample.
type Snapshot struct {
	CPU        float64             `json:"cpu"`
	Mem        float64             `json:"mem"`
	MemUsedGB  float64             `json:"mem_used_gb"`
	MemTotalGB float64             `json:"mem_total_gb"`
	NICs       map[string]NICStats `json:"nics"`
}

// Collector periodically samples the host and retains the latest snapshot
// for the REST endpoint.
type Collector struct {
	interval time.Duration
	bus      *events.Bus
	logger   *slog.Logger

	mu   sync.RWMutex
	last Snapshot

	prevCounters map[string]gopsnet.IOCountersStat
	prevAt       time.Time
}

// NewCollector creates a collector publishing to bus every interval.
func NewCollector(interval time.Duration, bus *events.Bus, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		interval: interval,
		bus:      bus,
		logger:   observability.WithComponent(logger, "metrics"),
	}
	c.last = c.seed()
	return c
}

// Last returns the most recent snapshot.
func (c *Collector) Last() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) setLast(s Snapshot) {
	c.mu.Lock()
	c.last = s
	c.mu.Unlock()
}

// seed produces an immediate memory-only sample so the endpoint has data
// before the first full sampling window completes.
func (c *Collector) seed() Snapshot {
	s := Snapshot{NICs: map[string]NICStats{}}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.Mem = vm.UsedPercent
		s.MemUsedGB = float64(vm.Used) / (1 << 30)
		s.MemTotalGB = float64(vm.Total) / (1 << 30)
	}
	return s
}

// Run samples until ctx is cancelled. Each sample blocks for the interval
// while CPU usage is measured.
func (c *Collector) Run(ctx context.Context) {
	observability.System(c.logger, "metrics sampler started", "interval", c.interval.String())
	for {
		s, err := c.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("metrics sample failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.interval):
			}
			continue
		}

		c.setLast(s)
		if c.bus != nil {
			c.bus.Publish(events.TypeMetrics, map[string]any{
				"cpu": s.CPU, "mem": s.Mem,
				"mem_used_gb": s.MemUsedGB, "mem_total_gb": s.MemTotalGB,
				"nics": s.NICs,
			})
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Collector) sample(ctx context.Context) (Snapshot, error) {
	// cpu.PercentWithContext with a non-zero interval blocks for the
	// window, pacing the loop.
	pcts, err := cpu.PercentWithContext(ctx, c.interval, false)
	if err != nil {
		return Snapshot{}, err
	}

	s := Snapshot{NICs: map[string]NICStats{}}
	if len(pcts) > 0 {
		s.CPU = pcts[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.Mem = vm.UsedPercent
		s.MemUsedGB = float64(vm.Used) / (1 << 30)
		s.MemTotalGB = float64(vm.Total) / (1 << 30)
	}

	counters, err := gopsnet.IOCountersWithContext(ctx, true)
	if err == nil {
		now := time.Now()
		next := make(map[string]gopsnet.IOCountersStat, len(counters))
		elapsed := now.Sub(c.prevAt).Seconds()
		for _, io := range counters {
			next[io.Name] = io
			prev, ok := c.prevCounters[io.Name]
			if !ok || elapsed <= 0 {
				continue
			}
			// Counters reset on interface bounce; skip the window.
			if io.BytesRecv < prev.BytesRecv || io.BytesSent < prev.BytesSent {
				continue
			}
			s.NICs[io.Name] = NICStats{
				RxMbps: RateMbps(io.BytesRecv-prev.BytesRecv, elapsed),
				TxMbps: RateMbps(io.BytesSent-prev.BytesSent, elapsed),
			}
		}
		c.prevCounters = next
		c.prevAt = now
	}

	return s, nil
}

// RateMbps converts a byte delta over a window to megabits per second.
func RateMbps(deltaBytes uint64, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(deltaBytes) * 8 / 1e6 / seconds
}
