// Package cache is a cache-aside store with per-key TTLs. The Redis backend
// is preferred; an in-process bounded map takes over whenever Redis is
// unreachable. Callers never see cache errors.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a raw byte backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Cache encodes values as JSON on top of a primary Store and falls back to
// an in-process Memory store when the primary fails.
type Cache struct {
	log      *slog.Logger
	primary  Store
	fallback *Memory
}

func New(log *slog.Logger, primary Store, fallback *Memory) *Cache {
	if fallback == nil {
		fallback = NewMemory(DefaultCapacity)
	}
	return &Cache{log: log, primary: primary, fallback: fallback}
}

// Connect pings Redis and degrades to the in-process store when it is not
// reachable at startup.
func Connect(ctx context.Context, log *slog.Logger, rdb *redis.Client) *Cache {
	mem := NewMemory(DefaultCapacity)
	if rdb == nil {
		log.Warn("cache: no redis client, using in-memory fallback")
		return New(log, nil, mem)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("cache: redis not available, using in-memory fallback", "err", err)
		return New(log, nil, mem)
	}
	return New(log, NewRedis(rdb), mem)
}

// Degraded reports whether the cache is running without its primary store.
func (c *Cache) Degraded() bool { return c.primary == nil }

// Get decodes the cached value into dst. It reports false on a miss, on a
// backend failure and on an undecodable entry.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	raw, ok := c.getRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("cache: dropping undecodable entry", "key", key, "err", err)
		c.Delete(ctx, key)
		return false
	}
	return true
}

func (c *Cache) getRaw(ctx context.Context, key string) ([]byte, bool) {
	if c.primary != nil {
		raw, ok, err := c.primary.Get(ctx, key)
		if err == nil {
			return raw, ok
		}
		c.log.Warn("cache get failed, trying fallback", "key", key, "err", err)
	}
	raw, ok, _ := c.fallback.Get(ctx, key)
	return raw, ok
}

// Set stores value under key for ttl. A zero ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Error("cache: encode failed", "key", key, "err", err)
		return
	}
	if c.primary != nil {
		err := c.primary.Set(ctx, key, raw, ttl)
		if err == nil {
			return
		}
		c.log.Warn("cache set failed, writing fallback", "key", key, "err", err)
	}
	_ = c.fallback.Set(ctx, key, raw, ttl)
}

// Delete removes key from every backend so a fallback entry written during
// an outage cannot outlive an invalidation.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c.primary != nil {
		if err := c.primary.Delete(ctx, key); err != nil {
			c.log.Warn("cache delete failed", "key", key, "err", err)
		}
	}
	_ = c.fallback.Delete(ctx, key)
}

func (c *Cache) Clear(ctx context.Context) {
	if c.primary != nil {
		if err := c.primary.Clear(ctx); err != nil {
			c.log.Warn("cache clear failed", "err", err)
		}
	}
	_ = c.fallback.Clear(ctx)
}
