package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Counters is an in-process implementation of every hook interface. It keeps
// running totals that an HTTP endpoint or a log line can report.
type Counters struct {
	exportsStarted   atomic.Int64
	exportsCompleted atomic.Int64
	exportsCancelled atomic.Int64
	exportsFailed    atomic.Int64
	framesCaptured   atomic.Int64
	captureNanos     atomic.Int64

	acquires        atomic.Int64
	reuses          atomic.Int64
	releases        atomic.Int64
	disposals       atomic.Int64
	budgetExceeded  atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	cacheBytesSaved atomic.Int64

	mu        sync.Mutex
	evictions map[string]int64
	stages    map[string]int64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{
		evictions: make(map[string]int64),
		stages:    make(map[string]int64),
	}
}

// Register installs c as the export, pool and cache hooks.
func (c *Counters) Register() {
	SetExportHooks(c)
	SetPoolHooks(c)
	SetCacheHooks(c)
}

func (c *Counters) OnExportStart(context.Context, string, int) {
	c.exportsStarted.Add(1)
}

func (c *Counters) OnStage(_ context.Context, _ string, stage string) {
	c.mu.Lock()
	c.stages[stage]++
	c.mu.Unlock()
}

func (c *Counters) OnFrameCaptured(_ context.Context, _ string, _ int, d time.Duration) {
	c.framesCaptured.Add(1)
	c.captureNanos.Add(int64(d))
}

func (c *Counters) OnExportComplete(_ context.Context, _ string, _ time.Duration, cancelled bool, err error) {
	switch {
	case cancelled:
		c.exportsCancelled.Add(1)
	case err != nil:
		c.exportsFailed.Add(1)
	default:
		c.exportsCompleted.Add(1)
	}
}

func (c *Counters) OnAcquire(_, _ int, reused bool) {
	c.acquires.Add(1)
	if reused {
		c.reuses.Add(1)
	}
}

func (c *Counters) OnRelease(_, _ int, pooled bool) {
	c.releases.Add(1)
	if !pooled {
		c.disposals.Add(1)
	}
}

func (c *Counters) OnEvict(_, _ int, reason string) {
	c.mu.Lock()
	c.evictions[reason]++
	c.mu.Unlock()
}

func (c *Counters) OnBudgetExceeded(int64, int64, int64) {
	c.budgetExceeded.Add(1)
}

func (c *Counters) OnCacheHit(context.Context, string) {
	c.cacheHits.Add(1)
}

func (c *Counters) OnCacheMiss(context.Context, string) {
	c.cacheMisses.Add(1)
}

func (c *Counters) OnCacheSet(_ context.Context, _ string, size int) {
	c.cacheBytesSaved.Add(int64(size))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ExportsStarted   int64 `json:"exports_started"`
	ExportsCompleted int64 `json:"exports_completed"`
	ExportsCancelled int64 `json:"exports_cancelled"`
	ExportsFailed    int64 `json:"exports_failed"`
	FramesCaptured   int64 `json:"frames_captured"`

	// MeanCaptureMS is the average time spent per captured frame.
	MeanCaptureMS float64 `json:"mean_capture_ms"`

	Stages map[string]int64 `json:"stages"`

	PoolAcquires       int64            `json:"pool_acquires"`
	PoolReuses         int64            `json:"pool_reuses"`
	PoolReleases       int64            `json:"pool_releases"`
	PoolDisposals      int64            `json:"pool_disposals"`
	PoolBudgetExceeded int64            `json:"pool_budget_exceeded"`
	PoolEvictions      map[string]int64 `json:"pool_evictions"`

	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	CacheSetBytes int64 `json:"cache_set_bytes"`
}

// Snapshot copies the current totals.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		ExportsStarted:     c.exportsStarted.Load(),
		ExportsCompleted:   c.exportsCompleted.Load(),
		ExportsCancelled:   c.exportsCancelled.Load(),
		ExportsFailed:      c.exportsFailed.Load(),
		FramesCaptured:     c.framesCaptured.Load(),
		PoolAcquires:       c.acquires.Load(),
		PoolReuses:         c.reuses.Load(),
		PoolReleases:       c.releases.Load(),
		PoolDisposals:      c.disposals.Load(),
		PoolBudgetExceeded: c.budgetExceeded.Load(),
		CacheHits:          c.cacheHits.Load(),
		CacheMisses:        c.cacheMisses.Load(),
		CacheSetBytes:      c.cacheBytesSaved.Load(),
	}
	if s.FramesCaptured > 0 {
		s.MeanCaptureMS = float64(c.captureNanos.Load()) / float64(s.FramesCaptured) / float64(time.Millisecond)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.Stages = make(map[string]int64, len(c.stages))
	for k, v := range c.stages {
		s.Stages[k] = v
	}
	s.PoolEvictions = make(map[string]int64, len(c.evictions))
	for k, v := range c.evictions {
		s.PoolEvictions[k] = v
	}
	return s
}
