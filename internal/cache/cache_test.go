package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryClient(2)
	c.now = func() time.Time { return now }

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss, "entry expiring first is evicted")
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	require.NoError(t, c.Set(ctx, Key("catalog", "glicose"), []byte("x"), time.Hour))
	require.NoError(t, c.Set(ctx, Key("catalog", "ureia"), []byte("y"), time.Hour))
	require.NoError(t, c.Set(ctx, Key("other", "k"), []byte("z"), time.Hour))

	require.NoError(t, c.DeleteByPrefix(ctx, "catalog:"))

	_, err := c.Get(ctx, "catalog:glicose")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "other:k")
	assert.NoError(t, err)
	assert.NoError(t, c.Close())
}
