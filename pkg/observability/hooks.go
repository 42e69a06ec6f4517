// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about export jobs, canvas pool activity, and cache operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetExportHooks(&myExportHooks{})
//	    observability.SetPoolHooks(&myPoolHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Export().OnExportStart(ctx, jobID, totalFrames)
//	// ... capture and encode ...
//	observability.Export().OnExportComplete(ctx, jobID, duration, cancelled, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Export Hooks
// =============================================================================

// ExportHooks receives events from the export pipeline.
type ExportHooks interface {
	// OnExportStart is called once a job has been accepted.
	OnExportStart(ctx context.Context, jobID string, totalFrames int)

	// OnStage is called on every stage transition.
	OnStage(ctx context.Context, jobID string, stage string)

	// OnFrameCaptured is called after a frame has been handed to the encoder.
	OnFrameCaptured(ctx context.Context, jobID string, index int, duration time.Duration)

	// OnExportComplete is called on every exit path. cancelled is true for
	// cooperative cancellation, in which case err is nil.
	OnExportComplete(ctx context.Context, jobID string, duration time.Duration, cancelled bool, err error)
}

// =============================================================================
// Pool Hooks
// =============================================================================

// PoolHooks receives events from the canvas resource pool.
type PoolHooks interface {
	// OnAcquire records a surface checkout. reused is false for fresh allocations.
	OnAcquire(width, height int, reused bool)

	// OnRelease records a surface return. pooled is false when it was disposed.
	OnRelease(width, height int, pooled bool)

	// OnEvict records an idle surface disposed to make room or by the sweeper.
	OnEvict(width, height int, reason string)

	// OnBudgetExceeded records an allocation that could not be satisfied.
	OnBudgetExceeded(requiredBytes, attributedBytes, budgetBytes int64)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopExportHooks is a no-op implementation of ExportHooks.
type NoopExportHooks struct{}

func (NoopExportHooks) OnExportStart(context.Context, string, int)                  {}
func (NoopExportHooks) OnStage(context.Context, string, string)                     {}
func (NoopExportHooks) OnFrameCaptured(context.Context, string, int, time.Duration) {}
func (NoopExportHooks) OnExportComplete(context.Context, string, time.Duration, bool, error) {
}

// NoopPoolHooks is a no-op implementation of PoolHooks.
type NoopPoolHooks struct{}

func (NoopPoolHooks) OnAcquire(int, int, bool)             {}
func (NoopPoolHooks) OnRelease(int, int, bool)             {}
func (NoopPoolHooks) OnEvict(int, int, string)             {}
func (NoopPoolHooks) OnBudgetExceeded(int64, int64, int64) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	exportHooks ExportHooks = NoopExportHooks{}
	poolHooks   PoolHooks   = NoopPoolHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	hooksMu     sync.RWMutex
)

// SetExportHooks registers custom export hooks.
// This should be called once at application startup before any export runs.
func SetExportHooks(h ExportHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		exportHooks = h
	}
}

// SetPoolHooks registers custom pool hooks.
func SetPoolHooks(h PoolHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		poolHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Export returns the registered export hooks.
func Export() ExportHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return exportHooks
}

// Pool returns the registered pool hooks.
func Pool() PoolHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return poolHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	exportHooks = NoopExportHooks{}
	poolHooks = NoopPoolHooks{}
	cacheHooks = NoopCacheHooks{}
}
