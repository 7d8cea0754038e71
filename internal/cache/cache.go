package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/jpalmerr/scorepulse/internal/metrics"
	"github.com/jpalmerr/scorepulse/internal/upstream"
)

// Entry is one cached upstream response.
//
// Value is always the most recent successfully fetched payload for Key. It is
// only ever replaced by a newer success, never cleared by a failure.
type Entry struct {
	Key       string
	Value     json.RawMessage
	FetchedAt time.Time
}

// FetchFunc performs the upstream call for a cache miss.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Cache is a keyed store of upstream responses with per-call TTLs and
// stale-on-error fallback. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	flights singleflight.Group
	clock   clockwork.Clock
	logger  *slog.Logger
}

// New creates an empty [Cache]. A nil clock uses the real clock; a nil
// logger uses [slog.Default].
func New(clock clockwork.Clock, logger *slog.Logger) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]Entry),
		clock:   clock,
		logger:  logger,
	}
}

// GetOrFetch returns the value cached under key, calling fetch when the entry
// is missing or older than ttl.
//
// Concurrent calls for the same key while a fetch is in flight wait for that
// fetch instead of issuing their own. The shared fetch runs detached from
// every caller's cancellation. A caller whose ctx ends first stops waiting:
// it gets the stale entry if there is one, otherwise an
// *[upstream.UpstreamError] wrapping ctx.Err(). The fetch keeps running and
// stores its result for the next caller.
//
// If fetch fails and an entry exists, the stale value is returned and the
// failure is only logged. If no entry exists, the failure is returned as an
// *[upstream.UpstreamError] and nothing is stored.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, error) {
	if value, ok := c.fresh(key, ttl); ok {
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return value, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		// a flight that finished just before this one started may have stored it
		if value, ok := c.fresh(key, ttl); ok {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return value, nil
		}
		return c.refresh(flightCtx, key, fetch)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		select {
		case res = <-ch:
		default:
			return c.abandon(key, ctx.Err())
		}
	}

	if res.Shared {
		metrics.CacheCoalescedTotal.Inc()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.(json.RawMessage), nil
}

// abandon answers a caller that stopped waiting for an in-flight fetch.
func (c *Cache) abandon(key string, cause error) (json.RawMessage, error) {
	if prev, ok := c.Peek(key); ok {
		metrics.CacheRequestsTotal.WithLabelValues("stale").Inc()
		c.logger.Warn("cache: serving stale entry",
			"key", key,
			"age", c.clock.Since(prev.FetchedAt).String(),
			"error", cause.Error(),
		)
		return prev.Value, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
	return nil, &upstream.UpstreamError{Message: "fetch abandoned: " + cause.Error(), Err: cause}
}

func (c *Cache) fresh(key string, ttl time.Duration) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.clock.Since(entry.FetchedAt) >= ttl {
		return nil, false
	}
	return entry.Value, true
}

func (c *Cache) refresh(ctx context.Context, key string, fetch FetchFunc) (json.RawMessage, error) {
	value, err := fetch(ctx)
	if err == nil {
		c.mu.Lock()
		c.entries[key] = Entry{Key: key, Value: value, FetchedAt: c.clock.Now()}
		size := len(c.entries)
		c.mu.Unlock()

		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		metrics.CacheEntries.Set(float64(size))
		return value, nil
	}

	c.mu.RLock()
	prev, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		metrics.CacheRequestsTotal.WithLabelValues("stale").Inc()
		c.logger.Warn("cache: serving stale entry",
			"key", key,
			"age", c.clock.Since(prev.FetchedAt).String(),
			"error", err.Error(),
		)
		return prev.Value, nil
	}

	metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
	var ue *upstream.UpstreamError
	if errors.As(err, &ue) {
		return nil, err
	}
	return nil, &upstream.UpstreamError{Message: err.Error(), Err: err}
}

// Peek returns the entry stored under key regardless of its age.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes entries fetched more than maxAge ago and returns how many
// were removed. maxAge should exceed the longest TTL in use, otherwise
// entries lose their stale fallback before they would have been refreshed.
func (c *Cache) Sweep(maxAge time.Duration) int {
	now := c.clock.Now()

	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.FetchedAt) > maxAge {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	metrics.CacheEvictionsTotal.Add(float64(removed))
	metrics.CacheEntries.Set(float64(size))
	return removed
}

// RunSweeper calls [Cache.Sweep] every interval until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (c *Cache) RunSweeper(ctx context.Context, every, maxAge time.Duration) {
	ticker := c.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := c.Sweep(maxAge); n > 0 {
				c.logger.Debug("cache swept", "removed", n, "remaining", c.Len())
			}
		}
	}
}
