package retrieval

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/storage"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🧭 检索策略
// =============================================================================

// Strategy 检索策略接口
type Strategy interface {
	// Retrieve 返回与查询最相关的 topK 个块
	Retrieve(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error)

	// Name 返回策略名称
	Name() string
}

// maxExpandedK 是混合检索每条腿的取数上限
const maxExpandedK = 100

// -----------------------------------------------------------------------------
// 语义检索
// -----------------------------------------------------------------------------

// SemanticStrategy 通过查询向量在存储中做余弦检索。
type SemanticStrategy struct {
	store    storage.Store
	provider embedding.Provider
}

// NewSemanticStrategy creates a vector-similarity strategy.
func NewSemanticStrategy(store storage.Store, provider embedding.Provider) *SemanticStrategy {
	return &SemanticStrategy{store: store, provider: provider}
}

// Name returns the strategy name.
func (s *SemanticStrategy) Name() string { return "semantic" }

// Retrieve embeds the query and searches the store.
func (s *SemanticStrategy) Retrieve(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
	queryVec, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to embed query").WithCause(err)
	}
	return s.store.Search(ctx, queryVec, topK)
}

// -----------------------------------------------------------------------------
// 关键词检索
// -----------------------------------------------------------------------------

// KeywordStrategy 在存储的全部块上维护一个 BM25 索引。
// 索引懒构建；存储变更后调用 MarkDirty 触发下次检索时重建。
type KeywordStrategy struct {
	store  storage.Store
	logger *zap.Logger

	mu    sync.Mutex
	index *BM25Index
	dirty bool
}

// NewKeywordStrategy creates a BM25 keyword strategy over the store.
func NewKeywordStrategy(store storage.Store, logger *zap.Logger) *KeywordStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordStrategy{
		store:  store,
		logger: logger,
		index:  NewBM25Index(defaultK1, defaultB),
		dirty:  true,
	}
}

// Name returns the strategy name.
func (s *KeywordStrategy) Name() string { return "keyword" }

// MarkDirty 标记索引失效，下次检索时重建。
func (s *KeywordStrategy) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Retrieve rebuilds the index if needed and runs a BM25 search.
func (s *KeywordStrategy) Retrieve(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		chunks, err := s.store.All(ctx)
		if err != nil {
			return nil, err
		}
		s.index.Build(chunks)
		s.dirty = false
		s.logger.Debug("BM25 索引已重建", zap.Int("chunks", len(chunks)))
	}

	return s.index.Search(query, topK), nil
}

// -----------------------------------------------------------------------------
// 混合检索
// -----------------------------------------------------------------------------

// HybridStrategy 合并语义与关键词两条腿的结果：
// 各腿先按 min(2k, 100) 扩大取数，分数做 min-max 归一化后加权求和。
type HybridStrategy struct {
	semantic       *SemanticStrategy
	keyword        *KeywordStrategy
	semanticWeight float64
}

// NewHybridStrategy creates a weighted semantic + keyword strategy.
// semanticWeight must be in [0, 1]; the keyword leg gets 1-semanticWeight.
func NewHybridStrategy(semantic *SemanticStrategy, keyword *KeywordStrategy, semanticWeight float64) *HybridStrategy {
	if semanticWeight < 0 || semanticWeight > 1 {
		semanticWeight = 0.7
	}
	return &HybridStrategy{
		semantic:       semantic,
		keyword:        keyword,
		semanticWeight: semanticWeight,
	}
}

// Name returns the strategy name.
func (s *HybridStrategy) Name() string { return "hybrid" }

// Retrieve runs both legs and merges their normalized scores.
func (s *HybridStrategy) Retrieve(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
	expandedK := min(2*topK, maxExpandedK)

	semantic, err := s.semantic.Retrieve(ctx, query, expandedK)
	if err != nil {
		return nil, err
	}
	keyword, err := s.keyword.Retrieve(ctx, query, expandedK)
	if err != nil {
		return nil, err
	}

	merged := mergeResults(semantic, keyword, s.semanticWeight)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// mergeResults 归一化两条腿的分数后做加权合并，按合并分降序返回。
func mergeResults(semantic, keyword []types.ScoredChunk, semanticWeight float64) []types.ScoredChunk {
	normalizeScores(semantic)
	normalizeScores(keyword)

	combined := make(map[string]types.ScoredChunk)
	for _, sc := range semantic {
		sc.Score *= semanticWeight
		combined[sc.Chunk.ID] = sc
	}
	for _, sc := range keyword {
		weighted := sc.Score * (1 - semanticWeight)
		if existing, ok := combined[sc.Chunk.ID]; ok {
			existing.Score += weighted
			combined[sc.Chunk.ID] = existing
		} else {
			sc.Score = weighted
			combined[sc.Chunk.ID] = sc
		}
	}

	merged := make([]types.ScoredChunk, 0, len(combined))
	for _, sc := range combined {
		merged = append(merged, sc)
	}
	sort.Slice(merged, func(a, b int) bool {
		return merged[a].Score > merged[b].Score
	})
	return merged
}

// normalizeScores 把分数 min-max 归一化到 [0, 1]。
// 所有分数相同时全部置为 1.0。
func normalizeScores(results []types.ScoredChunk) {
	if len(results) == 0 {
		return
	}

	minScore, maxScore := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	if maxScore == minScore {
		for i := range results {
			results[i].Score = 1.0
		}
		return
	}

	for i := range results {
		results[i].Score = (results[i].Score - minScore) / (maxScore - minScore)
	}
}
