// Package canvas provides a memory-bounded pool of RGBA surfaces.
//
// The export pipeline renders hundreds of identically sized frames; the pool
// lets it reuse one buffer per size instead of allocating a fresh one per
// frame, while keeping the total memory attributed to surfaces under a hard
// budget.
//
// # Model
//
// Surfaces are grouped into buckets keyed by (width, height). Each bucket
// holds at most MaxPerBucket entries, each either in use (checked out by a
// caller) or idle. Every byte of every live surface, pooled or checked out,
// is attributed against MaxTotalMemory. When an allocation would exceed the
// budget the least recently used idle entry across all buckets is evicted
// until the request fits; if it still does not fit Acquire fails with
// MEMORY_BUDGET_EXCEEDED instead of overshooting.
//
// A background sweeper, owned by Start and Stop, disposes idle entries that
// have not been used for TTL.
//
// Thread safety: All methods are safe for concurrent use.
package canvas

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/seqexport/pkg/errors"
	"github.com/matzehuels/seqexport/pkg/observability"
)

const (
	// DefaultMaxTotalMemory is the default budget for all live surfaces.
	DefaultMaxTotalMemory = int64(512 << 20)

	// DefaultMaxPerBucket is the default number of entries kept per size.
	DefaultMaxPerBucket = 10

	// DefaultMaxEntryBytes is the largest surface that may be kept idle.
	DefaultMaxEntryBytes = int64(64 << 20)

	// DefaultTTL is how long an idle surface survives a sweep.
	DefaultTTL = 60 * time.Second

	// DefaultSweepInterval is the period of the background sweeper.
	DefaultSweepInterval = 30 * time.Second
)

// Eviction reasons reported to observability hooks.
const (
	EvictBudget  = "budget"
	EvictExpired = "expired"
	EvictCleared = "cleared"
)

// Config controls pool limits. Zero values select the defaults.
type Config struct {
	MaxTotalMemory int64
	MaxPerBucket   int
	MaxEntryBytes  int64
	TTL            time.Duration
	SweepInterval  time.Duration

	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time

	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.MaxTotalMemory <= 0 {
		c.MaxTotalMemory = DefaultMaxTotalMemory
	}
	if c.MaxPerBucket <= 0 {
		c.MaxPerBucket = DefaultMaxPerBucket
	}
	if c.MaxEntryBytes <= 0 {
		c.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Stats is a point-in-time summary of pool usage.
type Stats struct {
	TotalPools         int     `json:"total_pools"`
	TotalCanvases      int     `json:"total_canvases"`
	InUse              int     `json:"in_use"`
	Idle               int     `json:"idle"`
	AttributedBytes    int64   `json:"attributed_bytes"`
	MemoryUsageMB      float64 `json:"memory_usage_mb"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// poolKey identifies a bucket of identically sized surfaces.
type poolKey struct {
	width  int
	height int
}

type entry struct {
	surface    *Surface
	key        poolKey
	lastUsedAt time.Time
	inUse      bool
	pooled     bool // member of its bucket
}

// Pool hands out surfaces under a global memory budget.
type Pool struct {
	mu         sync.Mutex
	cfg        Config
	buckets    map[poolKey][]*entry
	live       map[*Surface]*entry
	attributed int64
	nextID     uint64

	sweepMu sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

// NewPool creates a pool with the given configuration.
func NewPool(cfg Config) *Pool {
	cfg.setDefaults()
	return &Pool{
		cfg:     cfg,
		buckets: make(map[poolKey][]*entry),
		live:    make(map[*Surface]*entry),
	}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Acquire checks out a cleared surface of the given size.
//
// An idle surface of the same size is reused when available. Otherwise a new
// one is allocated, evicting least recently used idle surfaces first if the
// budget requires it.
func (p *Pool) Acquire(width, height int) (*Surface, error) {
	if err := errors.ValidateDimensions(width, height); err != nil {
		return nil, err
	}
	key := poolKey{width: width, height: height}
	required := surfaceBytes(width, height)

	p.mu.Lock()
	now := p.cfg.Clock()

	if e := p.idleEntry(key); e != nil {
		e.inUse = true
		e.lastUsedAt = now
		p.mu.Unlock()

		e.surface.Clear()
		observability.Pool().OnAcquire(width, height, true)
		return e.surface, nil
	}

	var evicted []*entry
	if required <= p.cfg.MaxTotalMemory {
		for p.attributed+required > p.cfg.MaxTotalMemory {
			e := p.evictOldestLocked()
			if e == nil {
				break
			}
			evicted = append(evicted, e)
		}
	}
	if p.attributed+required > p.cfg.MaxTotalMemory {
		attributed := p.attributed
		p.mu.Unlock()

		p.reportEvictions(evicted, EvictBudget)
		observability.Pool().OnBudgetExceeded(required, attributed, p.cfg.MaxTotalMemory)
		p.cfg.Logger.Warn("canvas budget exceeded",
			"width", width,
			"height", height,
			"required_bytes", required,
			"attributed_bytes", attributed,
			"budget_bytes", p.cfg.MaxTotalMemory)
		return nil, errors.New(errors.ErrCodeMemoryBudgetExceeded,
			"cannot allocate %dx%d surface: %d bytes required, %d of %d bytes attributed",
			width, height, required, attributed, p.cfg.MaxTotalMemory)
	}

	p.nextID++
	s := newSurface(p.nextID, width, height)
	e := &entry{surface: s, key: key, lastUsedAt: now, inUse: true}
	if len(p.buckets[key]) < p.cfg.MaxPerBucket {
		p.buckets[key] = append(p.buckets[key], e)
		e.pooled = true
	}
	p.live[s] = e
	p.attributed += required
	p.mu.Unlock()

	p.reportEvictions(evicted, EvictBudget)
	observability.Pool().OnAcquire(width, height, false)
	p.cfg.Logger.Debug("allocated surface", "id", s.id, "width", width, "height", height)
	return s, nil
}

// Release returns a surface to the pool.
//
// The surface becomes idle when its bucket has room and it is smaller than
// MaxEntryBytes; otherwise it is disposed and its bytes are un-attributed.
// Releasing a surface the pool does not track, or one already released, is
// a no-op.
func (p *Pool) Release(s *Surface) {
	if s == nil {
		return
	}

	p.mu.Lock()
	e, ok := p.live[s]
	if !ok || !e.inUse {
		p.mu.Unlock()
		return
	}

	keep := s.Bytes() < p.cfg.MaxEntryBytes
	if keep && !e.pooled {
		keep = len(p.buckets[e.key]) < p.cfg.MaxPerBucket
		if keep {
			p.buckets[e.key] = append(p.buckets[e.key], e)
			e.pooled = true
		}
	}

	if keep {
		e.inUse = false
		e.lastUsedAt = p.cfg.Clock()
	} else {
		p.disposeLocked(e)
	}
	p.mu.Unlock()

	observability.Pool().OnRelease(e.key.width, e.key.height, keep)
}

// Sweep disposes idle surfaces unused for longer than TTL and drops empty
// buckets. It returns the number of surfaces disposed.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	now := p.cfg.Clock()
	var expired []*entry
	for key, bucket := range p.buckets {
		for _, e := range bucket {
			if !e.inUse && now.Sub(e.lastUsedAt) > p.cfg.TTL {
				expired = append(expired, e)
			}
		}
		if len(bucket) == 0 {
			delete(p.buckets, key)
		}
	}
	for _, e := range expired {
		p.disposeLocked(e)
	}
	p.mu.Unlock()

	p.reportEvictions(expired, EvictExpired)
	if len(expired) > 0 {
		p.cfg.Logger.Debug("swept idle surfaces", "count", len(expired))
	}
	return len(expired)
}

// Clear disposes every surface, including checked-out ones, and zeroes the
// attributed byte count. Releasing a surface after Clear is a no-op.
func (p *Pool) Clear() {
	p.mu.Lock()
	all := make([]*entry, 0, len(p.live))
	for _, e := range p.live {
		all = append(all, e)
	}
	p.buckets = make(map[poolKey][]*entry)
	p.live = make(map[*Surface]*entry)
	p.attributed = 0
	p.mu.Unlock()

	p.reportEvictions(all, EvictCleared)
}

// Stats returns current usage figures.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		TotalPools:      len(p.buckets),
		AttributedBytes: p.attributed,
	}
	for _, bucket := range p.buckets {
		st.TotalCanvases += len(bucket)
	}
	for _, e := range p.live {
		if e.inUse {
			st.InUse++
		} else {
			st.Idle++
		}
	}
	st.MemoryUsageMB = float64(p.attributed) / (1 << 20)
	st.UtilizationPercent = float64(p.attributed) / float64(p.cfg.MaxTotalMemory) * 100
	return st
}

// AttributedBytes returns the bytes currently attributed to live surfaces.
func (p *Pool) AttributedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attributed
}

// Start launches the background sweeper. Calling Start on a running pool
// does nothing.
func (p *Pool) Start() {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.sweepLoop(p.stop, p.done)
}

// Stop halts the background sweeper and waits for it to exit.
func (p *Pool) Stop() {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop = nil
	p.done = nil
}

// Close stops the sweeper and disposes every surface.
func (p *Pool) Close() error {
	p.Stop()
	p.Clear()
	return nil
}

func (p *Pool) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// idleEntry returns an idle entry for key, preferring the most recently used.
func (p *Pool) idleEntry(key poolKey) *entry {
	var best *entry
	for _, e := range p.buckets[key] {
		if e.inUse {
			continue
		}
		if best == nil || e.lastUsedAt.After(best.lastUsedAt) {
			best = e
		}
	}
	return best
}

// evictOldestLocked disposes the least recently used idle entry across all
// buckets. It returns nil when nothing is evictable.
func (p *Pool) evictOldestLocked() *entry {
	var oldest *entry
	for _, bucket := range p.buckets {
		for _, e := range bucket {
			if e.inUse {
				continue
			}
			if oldest == nil || e.lastUsedAt.Before(oldest.lastUsedAt) {
				oldest = e
			}
		}
	}
	if oldest != nil {
		p.disposeLocked(oldest)
	}
	return oldest
}

// disposeLocked removes e from all bookkeeping and un-attributes its bytes.
func (p *Pool) disposeLocked(e *entry) {
	if _, ok := p.live[e.surface]; !ok {
		return
	}
	delete(p.live, e.surface)
	p.attributed -= e.surface.Bytes()

	if e.pooled {
		bucket := p.buckets[e.key]
		for i, other := range bucket {
			if other == e {
				bucket = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(bucket) == 0 {
			delete(p.buckets, e.key)
		} else {
			p.buckets[e.key] = bucket
		}
		e.pooled = false
	}
}

func (p *Pool) reportEvictions(entries []*entry, reason string) {
	if len(entries) == 0 {
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastUsedAt.Before(entries[j].lastUsedAt)
	})
	hooks := observability.Pool()
	for _, e := range entries {
		hooks.OnEvict(e.key.width, e.key.height, reason)
	}
}
