package retrieval

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/internal/cache"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 💾 检索结果缓存
// =============================================================================

// ResultCache 检索结果缓存接口。未命中不是错误。
type ResultCache interface {
	// Get 取缓存的结果；第二个返回值表示是否命中
	Get(ctx context.Context, key string) ([]types.ScoredChunk, bool)

	// Set 写入结果
	Set(ctx context.Context, key string, results []types.ScoredChunk)

	// Invalidate 清空缓存（存储变更后调用）
	Invalidate(ctx context.Context) error
}

// CacheKey 构造检索缓存键：sha256(strategy|query|topK)。
func CacheKey(strategy, query string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", strategy, query, topK)))
	return hex.EncodeToString(sum[:])
}

// -----------------------------------------------------------------------------
// 内存 LRU 缓存
// -----------------------------------------------------------------------------

type memoryCacheEntry struct {
	key       string
	results   []types.ScoredChunk
	expiresAt time.Time
}

// MemoryResultCache 是带 TTL 的 LRU 内存缓存，Redis 缺席时的默认实现。
type MemoryResultCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
}

// NewMemoryResultCache creates an LRU cache with maxSize entries and per-entry TTL.
func NewMemoryResultCache(maxSize int, ttl time.Duration) *MemoryResultCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryResultCache{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the cached results if present and not expired.
func (c *MemoryResultCache) Get(ctx context.Context, key string) ([]types.ScoredChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*memoryCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.results, true
}

// Set stores results, evicting the least recently used entry when full.
func (c *MemoryResultCache) Set(ctx context.Context, key string, results []types.ScoredChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryCacheEntry)
		entry.results = results
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*memoryCacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&memoryCacheEntry{
		key:       key,
		results:   results,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Invalidate drops all entries.
func (c *MemoryResultCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	return nil
}

// -----------------------------------------------------------------------------
// Redis 缓存
// -----------------------------------------------------------------------------

// redisKeyPrefix 检索缓存在 Redis 中的键前缀
const redisKeyPrefix = "kbflow:retrieval:"

// RedisResultCache 基于内部缓存管理器的 Redis 检索缓存。
type RedisResultCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisResultCache creates a Redis-backed result cache.
func NewRedisResultCache(manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisResultCache{manager: manager, ttl: ttl, logger: logger}
}

// Get returns cached results; Redis failures degrade to a miss.
func (c *RedisResultCache) Get(ctx context.Context, key string) ([]types.ScoredChunk, bool) {
	var results []types.ScoredChunk
	err := c.manager.GetJSON(ctx, redisKeyPrefix+key, &results)
	if cache.IsCacheMiss(err) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("检索缓存读取失败", zap.Error(err))
		return nil, false
	}
	return results, true
}

// Set stores results; failures are logged, not returned.
func (c *RedisResultCache) Set(ctx context.Context, key string, results []types.ScoredChunk) {
	if err := c.manager.SetJSON(ctx, redisKeyPrefix+key, results, c.ttl); err != nil {
		c.logger.Warn("检索缓存写入失败", zap.Error(err))
	}
}

// Invalidate drops all retrieval cache keys.
func (c *RedisResultCache) Invalidate(ctx context.Context) error {
	return c.manager.DeleteByPrefix(ctx, redisKeyPrefix)
}
