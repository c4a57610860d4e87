package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/internal/cache"
	"github.com/kbflow/kbflow/types"
)

func sampleResults() []types.ScoredChunk {
	return []types.ScoredChunk{
		{Chunk: types.Chunk{ID: "c1", Content: "hello"}, Score: 0.9},
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	k1 := CacheKey("hybrid", "what is go", 5)
	k2 := CacheKey("hybrid", "what is go", 5)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, CacheKey("hybrid", "what is go", 10))
	assert.NotEqual(t, k1, CacheKey("semantic", "what is go", 5))
	assert.Len(t, k1, 64)
}

func TestMemoryResultCache(t *testing.T) {
	c := NewMemoryResultCache(10, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k1", sampleResults())
	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "c1", got[0].Chunk.ID)

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestMemoryResultCacheTTL(t *testing.T) {
	c := NewMemoryResultCache(10, 10*time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "k1", sampleResults())
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok, "expired entry must miss")
}

func TestMemoryResultCacheEviction(t *testing.T) {
	c := NewMemoryResultCache(2, time.Minute)
	ctx := context.Background()

	c.Set(ctx, "k1", sampleResults())
	c.Set(ctx, "k2", sampleResults())

	// 访问 k1 使 k2 成为最久未用
	c.Get(ctx, "k1")
	c.Set(ctx, "k3", sampleResults())

	_, ok := c.Get(ctx, "k2")
	assert.False(t, ok, "k2 should be evicted")
	_, ok = c.Get(ctx, "k1")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "k3")
	assert.True(t, ok)
}

func newTestRedisCache(t *testing.T) *RedisResultCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	manager := cache.NewManagerWithClient(client, cache.DefaultConfig(), zap.NewNop())
	return NewRedisResultCache(manager, time.Minute, zap.NewNop())
}

func TestRedisResultCache(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k1", sampleResults())
	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "c1", got[0].Chunk.ID)
	assert.Equal(t, 0.9, got[0].Score)

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, "k1")
	assert.False(t, ok)
}
