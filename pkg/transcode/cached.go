package transcode

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/seqexport/pkg/cache"
	"github.com/matzehuels/seqexport/pkg/observability"
)

const cacheKeyType = "transcode"

// Cached memoises another Transcoder. Cache failures are logged and never
// fail the conversion.
type Cached struct {
	inner  Transcoder
	cache  cache.Cache
	keyer  cache.Keyer
	logger *log.Logger
}

// NewCached wraps inner. A nil cache disables caching; a nil keyer uses the
// default keyer.
func NewCached(inner Transcoder, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Cached {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{inner: inner, cache: c, keyer: keyer, logger: logger}
}

// Convert implements Transcoder.
func (c *Cached) Convert(ctx context.Context, blob []byte, opts Options) ([]byte, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	key := c.keyer.TranscodeKey(cache.Hash(blob), cache.TranscodeKeyOpts{
		Format:   opts.Format,
		Quality:  opts.Quality,
		Lossless: opts.Lossless,
		Loop:     opts.Loop,
	})

	hooks := observability.Cache()
	data, hit, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("transcode cache read failed", "error", err)
	}
	if hit {
		hooks.OnCacheHit(ctx, cacheKeyType)
		c.logger.Debug("transcode cache hit", "format", opts.Format, "bytes", len(data))
		return data, nil
	}
	hooks.OnCacheMiss(ctx, cacheKeyType)

	data, err = c.inner.Convert(ctx, blob, opts)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, data, cache.TTLTranscode); err != nil {
		c.logger.Warn("transcode cache write failed", "error", err)
	} else {
		hooks.OnCacheSet(ctx, cacheKeyType, len(data))
	}
	return data, nil
}

var _ Transcoder = (*Cached)(nil)
