package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/config"
	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/internal/metrics"
	"github.com/kbflow/kbflow/storage"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🚪 检索引擎门面
// =============================================================================

// Engine 把策略、缓存、重排序和会话增强组合成统一入口。
type Engine struct {
	cfg           config.RetrievalConfig
	strategy      Strategy
	keyword       *KeywordStrategy
	reranker      Reranker
	cache         ResultCache
	conversations *Conversations
	metrics       *metrics.Collector
	logger        *zap.Logger
}

// NewEngine creates a retrieval engine from configuration.
// cache may be nil to disable result caching.
func NewEngine(cfg config.RetrievalConfig, store storage.Store, provider embedding.Provider, resultCache ResultCache, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	semantic := NewSemanticStrategy(store, provider)
	keyword := NewKeywordStrategy(store, logger)

	var strategy Strategy
	switch cfg.Strategy {
	case "semantic":
		strategy = semantic
	case "keyword":
		strategy = keyword
	case "hybrid", "":
		strategy = NewHybridStrategy(semantic, keyword, cfg.SemanticWeight)
	default:
		return nil, fmt.Errorf("unknown retrieval strategy: %s", cfg.Strategy)
	}

	return &Engine{
		cfg:           cfg,
		strategy:      strategy,
		keyword:       keyword,
		reranker:      NewReranker(cfg.Reranker, cfg.MetadataBoosts),
		cache:         resultCache,
		conversations: NewConversations(cfg.ConversationTurns),
		logger:        logger.With(zap.String("component", "retrieval")),
	}, nil
}

// SetMetrics 注入指标收集器，未注入时不记录。
func (e *Engine) SetMetrics(c *metrics.Collector) { e.metrics = c }

// Conversations 返回会话管理器（RAG 代理记录问答轮次用）。
func (e *Engine) Conversations() *Conversations { return e.conversations }

// Retrieve 执行一次检索：缓存 -> 策略 -> 分数下限 -> 重排序。
func (e *Engine) Retrieve(ctx context.Context, query string) ([]types.ScoredChunk, error) {
	return e.retrieve(ctx, query, e.cfg.TopK)
}

// RetrieveTopK 指定 topK 的检索。
func (e *Engine) RetrieveTopK(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
	return e.retrieve(ctx, query, topK)
}

// RetrieveForSession 先用会话历史增强查询再检索。
func (e *Engine) RetrieveForSession(ctx context.Context, sessionID, query string) ([]types.ScoredChunk, error) {
	enhanced := e.conversations.Enhance(sessionID, query)
	if enhanced != query {
		e.logger.Debug("查询已做会话增强",
			zap.String("session", sessionID),
			zap.String("query", query))
	}
	return e.retrieve(ctx, enhanced, e.cfg.TopK)
}

func (e *Engine) retrieve(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	key := CacheKey(e.strategy.Name(), query, topK)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			e.logger.Debug("检索缓存命中", zap.String("query", query))
			if e.metrics != nil {
				e.metrics.RecordCacheHit("retrieval")
			}
			return cached, nil
		}
		if e.metrics != nil {
			e.metrics.RecordCacheMiss("retrieval")
		}
	}

	start := time.Now()
	results, err := e.strategy.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	if e.cfg.MinScore > 0 {
		filtered := results[:0]
		for _, sc := range results {
			if sc.Score >= e.cfg.MinScore {
				filtered = append(filtered, sc)
			}
		}
		results = filtered
	}

	if e.reranker != nil {
		results = e.reranker.Rerank(query, results)
	}

	if e.metrics != nil {
		e.metrics.RecordRetrieval(e.strategy.Name(), time.Since(start), len(results))
	}

	e.logger.Debug("检索完成",
		zap.String("strategy", e.strategy.Name()),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	if e.cache != nil {
		e.cache.Set(ctx, key, results)
	}
	return results, nil
}

// InvalidateCache 使缓存和关键词索引失效，存储变更后必须调用。
func (e *Engine) InvalidateCache(ctx context.Context) error {
	e.keyword.MarkDirty()
	if e.cache == nil {
		return nil
	}
	return e.cache.Invalidate(ctx)
}
