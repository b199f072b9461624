package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/pkg/logging"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	c := Connect(ctx, logging.Discard(), client)
	require.False(t, c.Degraded())

	c.Set(ctx, "cart:u1", payload{Name: "mug", Count: 2}, 15*time.Minute)

	var got payload
	require.True(t, c.Get(ctx, "cart:u1", &got))
	assert.Equal(t, payload{Name: "mug", Count: 2}, got)
	assert.Equal(t, 15*time.Minute, mr.TTL("cache:cart:u1"))

	mr.FastForward(15*time.Minute + time.Second)
	assert.False(t, c.Get(ctx, "cart:u1", &got))
}

func TestCacheDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	c := Connect(ctx, logging.Discard(), client)

	c.Set(ctx, "products:all", []string{"p1"}, time.Minute)
	c.Set(ctx, "product:p1", payload{Name: "p1"}, time.Minute)

	c.Delete(ctx, "products:all")
	assert.False(t, mr.Exists("cache:products:all"))
	assert.True(t, mr.Exists("cache:product:p1"))

	c.Clear(ctx)
	assert.False(t, mr.Exists("cache:product:p1"))
}

func TestClearLeavesLocksAndIdempotencyKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	c := Connect(ctx, logging.Discard(), client)

	require.NoError(t, mr.Set("lock:cart:u1", "holder-token"))
	require.NoError(t, mr.Set("idem:orders:u1:k1", "1"))
	for i := range 1200 {
		c.Set(ctx, fmt.Sprintf("product:p%d", i), payload{Name: "p"}, time.Minute)
	}

	c.Clear(ctx)

	assert.True(t, mr.Exists("lock:cart:u1"))
	assert.True(t, mr.Exists("idem:orders:u1:k1"))
	assert.Equal(t, []string{"idem:orders:u1:k1", "lock:cart:u1"}, mr.Keys())
}

func TestConnectDegradesWhenRedisUnreachable(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	mr.Close()

	c := Connect(ctx, logging.Discard(), client)
	require.True(t, c.Degraded())

	c.Set(ctx, "k", payload{Name: "x"}, time.Minute)
	var got payload
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "x", got.Name)
}

func TestRuntimeFailureFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	c := Connect(ctx, logging.Discard(), client)
	require.False(t, c.Degraded())

	mr.Close()

	c.Set(ctx, "k", payload{Name: "during-outage"}, time.Minute)
	var got payload
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "during-outage", got.Name)

	c.Delete(ctx, "k")
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestUndecodableEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	c := Connect(ctx, logging.Discard(), client)

	require.NoError(t, mr.Set("cache:k", "not-json"))

	var got payload
	assert.False(t, c.Get(ctx, "k", &got))
	assert.False(t, mr.Exists("cache:k"))
}
