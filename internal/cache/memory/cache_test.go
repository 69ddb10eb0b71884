package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pan-storage/internal/repository"
)

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	defer c.Stop()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	value := []byte("101")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("101"), got, "stored value is a copy")

	got[0] = 'y'
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("101"), again, "returned value is a copy")
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	defer c.Stop()

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(2 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
	exists, _ := c.Exists(ctx, "short")
	assert.False(t, exists)

	exists, _ = c.Exists(ctx, "forever")
	assert.True(t, exists)

	ok, err := c.SetNX(ctx, "short", []byte("c"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key can be claimed")

	c.cleanup()
	c.mu.RLock()
	assert.Len(t, c.items, 2)
	c.mu.RUnlock()
}

func TestCache_SetNXAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	defer c.Stop()

	ok, err := c.SetNX(ctx, "k", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "k", []byte("2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Delete(ctx, "k", "missing"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	c.Stop()
	c.Stop()
}
