package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached upstream response is served without a refresh
const DefaultTTL = 60 * time.Second

// Store is the cache the fetcher reads from and writes to
type Store interface {
	Get(key string) (any, time.Duration, bool)
	Set(key string, value any)
}

// Cached puts upstream sources behind a Store.
//
// A value younger than the TTL is served without a network call. Older or
// missing values are refreshed through a single in-flight request per key,
// shared by every concurrent caller. When the refresh fails, any prior value
// for the key is served instead, however old; only a cold key propagates the
// upstream error.
type Cached struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCached creates a Cached fetcher. A non-positive ttl selects DefaultTTL
// and a nil logger selects slog.Default().
func NewCached(store Store, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL returns the freshness window
func (c *Cached) TTL() time.Duration {
	return c.ttl
}

// Get returns the value for src, from the cache when fresh and from upstream otherwise.
func Get[T any](ctx context.Context, c *Cached, src Source[T]) (T, error) {
	var zero T
	key := src.Key()

	if value, age, ok := c.store.Get(key); ok && age < c.ttl {
		return typed[T](key, value)
	}

	// The flight outlives any single caller so its result still lands in the
	// cache; the HTTP client timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.refresh(flightCtx, key, func(ctx context.Context) (any, error) {
			return src.Fetch(ctx)
		})
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return typed[T](key, res.Val)
	case <-ctx.Done():
		if value, _, ok := c.store.Get(key); ok {
			c.logger.Warn("caller gave up waiting for refresh, serving stale value", "key", key, "error", ctx.Err())
			return typed[T](key, value)
		}
		return zero, ctx.Err()
	}
}

func (c *Cached) refresh(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	// Another flight may have refreshed the key while this one was queued.
	if value, age, ok := c.store.Get(key); ok && age < c.ttl {
		return value, nil
	}

	start := time.Now()
	value, err := fetch(ctx)
	if err == nil {
		c.store.Set(key, value)
		c.logger.Debug("refreshed upstream value", "key", key, "duration", time.Since(start))
		return value, nil
	}

	upstreamErr := ClassifyRequestError(err)
	if prior, age, ok := c.store.Get(key); ok {
		c.logger.Warn("upstream refresh failed, serving stale value",
			"key", key,
			"age", age,
			"error", upstreamErr.Error())
		return prior, nil
	}

	c.logger.Error("upstream fetch failed with no cached fallback", "key", key, "error", upstreamErr.Error())
	return nil, upstreamErr
}

func typed[T any](key string, value any) (T, error) {
	v, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cached value for %s has type %T, want %T", key, value, zero)
	}
	return v, nil
}
