package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// releaseScript deletes the key only while it still carries the holder's
// token, so a holder whose TTL lapsed cannot free a lock someone else now
// owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *Redis) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	return releaseScript.Run(ctx, r.rdb, []string{keyPrefix + key}, token).Err()
}
