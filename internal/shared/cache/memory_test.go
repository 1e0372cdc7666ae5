package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Incr(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, ttl, err := c.Incr(ctx, "login:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	}
}

func TestMemoryCache_IncrIsolatesKeys(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	count, _, err := c.Incr(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, _, err = c.Incr(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryCache_WindowExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, _, err := c.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	_, _, err = c.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	count, _, err := c.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter should reset after the window expires")
}
