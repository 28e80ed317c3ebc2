package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache is a concurrent-safe TTL cache in front of a Loader. A zero TTL
// disables expiry; Invalidate forces the next Snapshot call to reload.
type Cache struct {
	loader   Loader
	ttl      time.Duration
	fallback Scale
	now      func() time.Time

	mu       sync.Mutex
	snap     *Snapshot
	loadedAt time.Time

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Loaded   bool          `json:"loaded"`
	Age      time.Duration `json:"age"`
	TTL      time.Duration `json:"ttl"`
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
	Errors   int64         `json:"errors"`
	HitRate  float64       `json:"hit_rate"`
	LoadedAt time.Time     `json:"loaded_at"`
}

// NewCache creates a Cache over loader with the given TTL. fallback is the
// score scale used when validating freshly loaded snapshots.
func NewCache(loader Loader, ttl time.Duration, fallback Scale) *Cache {
	return &Cache{loader: loader, ttl: ttl, fallback: fallback, now: time.Now}
}

// Snapshot implements Provider. Loads are serialized so concurrent misses
// trigger a single reload. When a reload fails and a previous snapshot
// exists, the stale snapshot is served and the failure logged.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil && (c.ttl == 0 || c.now().Sub(c.loadedAt) < c.ttl) {
		c.hits.Add(1)
		return c.snap, nil
	}
	c.misses.Add(1)

	snap, err := c.loader.Load(ctx)
	if err != nil {
		c.errors.Add(1)
		if c.snap != nil {
			zap.L().Error("catalog: reload failed, serving stale snapshot",
				zap.Error(err),
				zap.Time("loaded_at", c.loadedAt),
			)
			return c.snap, nil
		}
		return nil, eris.Wrap(err, "catalog: load")
	}

	for _, issue := range Validate(snap, c.fallback) {
		fields := []zap.Field{zap.String("publication", issue.Publication), zap.String("entity", issue.Entity), zap.String("id", issue.ID)}
		if issue.Severity == SeverityError {
			zap.L().Error("catalog: "+issue.Message, fields...)
		} else {
			zap.L().Warn("catalog: "+issue.Message, fields...)
		}
	}

	c.snap = snap
	c.loadedAt = c.now()
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	loaded := c.snap != nil
	loadedAt := c.loadedAt
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	st := CacheStats{
		Loaded:  loaded,
		TTL:     c.ttl,
		Hits:    hits,
		Misses:  misses,
		Errors:  c.errors.Load(),
		HitRate: hitRate,
	}
	if loaded {
		st.LoadedAt = loadedAt
		st.Age = c.now().Sub(loadedAt)
	}
	return st
}
