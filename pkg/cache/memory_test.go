package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(10)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))

	v, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(time.Minute)
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok, "entry must expire exactly at its deadline")
	assert.Equal(t, 0, m.Len())
}

func TestMemoryNoTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory(10)
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "a", []byte("1"), 0)
	now = now.Add(365 * 24 * time.Hour)

	_, ok, _ := m.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	_ = m.Set(ctx, "a", []byte("a"), 0)
	_ = m.Set(ctx, "b", []byte("b"), 0)
	_, _, _ = m.Get(ctx, "a")
	_ = m.Set(ctx, "c", []byte("c"), 0)

	assert.Equal(t, 2, m.Len())
	_, ok, _ := m.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryOverwriteAndClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	_ = m.Set(ctx, "a", []byte("1"), 0)
	_ = m.Set(ctx, "a", []byte("2"), 0)
	v, _, _ := m.Get(ctx, "a")
	assert.Equal(t, []byte("2"), v)
	assert.Equal(t, 1, m.Len())

	_ = m.Clear(ctx)
	assert.Equal(t, 0, m.Len())
}
