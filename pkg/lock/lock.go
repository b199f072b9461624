// Package lock provides advisory, self-expiring mutual exclusion keyed by
// string. Locks are not reentrant.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is the port used by cart mutations.
type Locker interface {
	// Acquire reports whether the caller now holds key and returns the
	// holder token that Release needs. A backend error is returned as is and
	// must be treated as a failed acquisition.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees key only while it is still held under token. It is
	// idempotent.
	Release(ctx context.Context, key, token string) error
}

// Connect returns a Redis-backed locker, or an in-process one when Redis is
// not reachable at startup.
func Connect(ctx context.Context, log *slog.Logger, rdb *redis.Client) Locker {
	if rdb == nil {
		log.Warn("lock: no redis client, using in-process locks")
		return NewMemory()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("lock: redis not available, using in-process locks", "err", err)
		return NewMemory()
	}
	return NewRedis(rdb)
}
