package retrieval

import (
	"sort"

	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🏅 结果重排序
// =============================================================================

// Reranker 对初检结果做二次排序。
type Reranker interface {
	// Rerank 调整分数并按新分数降序返回
	Rerank(query string, results []types.ScoredChunk) []types.ScoredChunk

	// Name 返回重排序器名称
	Name() string
}

// NewReranker 按名称创建重排序器；"none" 或空返回 nil。
func NewReranker(name string, boosts map[string]map[string]float64) Reranker {
	switch name {
	case "exact_match":
		return &ExactMatchReranker{Weight: 0.3}
	case "length_norm":
		return &LengthNormReranker{MinChars: 50, MaxChars: 2000}
	case "metadata_boost":
		return &MetadataBoostReranker{Boosts: boosts}
	case "ensemble":
		return &EnsembleReranker{
			Rerankers: []Reranker{
				&ExactMatchReranker{Weight: 0.3},
				&LengthNormReranker{MinChars: 50, MaxChars: 2000},
			},
			Weights: []float64{0.7, 0.3},
		}
	default:
		return nil
	}
}

// sortByScore 按分数降序排序。
func sortByScore(results []types.ScoredChunk) {
	sort.Slice(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
}

// -----------------------------------------------------------------------------
// 词面匹配加权
// -----------------------------------------------------------------------------

// ExactMatchReranker 按查询词在块内容中的覆盖率加权。
type ExactMatchReranker struct {
	// Weight 覆盖率对最终分数的贡献比例
	Weight float64
}

// Name returns the reranker name.
func (r *ExactMatchReranker) Name() string { return "exact_match" }

// Rerank blends the original score with query-term coverage.
func (r *ExactMatchReranker) Rerank(query string, results []types.ScoredChunk) []types.ScoredChunk {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return results
	}

	reranked := make([]types.ScoredChunk, len(results))
	for i, sc := range results {
		contentTerms := make(map[string]bool)
		for _, tok := range tokenize(sc.Chunk.Content) {
			contentTerms[tok] = true
		}

		matched := 0
		for _, term := range queryTerms {
			if contentTerms[term] {
				matched++
			}
		}
		coverage := float64(matched) / float64(len(queryTerms))

		sc.Score = sc.Score*(1-r.Weight) + coverage*r.Weight
		reranked[i] = sc
	}

	sortByScore(reranked)
	return reranked
}

// -----------------------------------------------------------------------------
// 长度归一化
// -----------------------------------------------------------------------------

// LengthNormReranker 惩罚过短或过长的块。
// 长度落在 [MinChars, MaxChars] 内不受影响，超出部分线性扣分。
type LengthNormReranker struct {
	MinChars int
	MaxChars int
}

// Name returns the reranker name.
func (r *LengthNormReranker) Name() string { return "length_norm" }

// Rerank applies a length penalty to out-of-range chunks.
func (r *LengthNormReranker) Rerank(query string, results []types.ScoredChunk) []types.ScoredChunk {
	reranked := make([]types.ScoredChunk, len(results))
	for i, sc := range results {
		n := len([]rune(sc.Chunk.Content))
		penalty := 1.0
		switch {
		case n < r.MinChars && r.MinChars > 0:
			penalty = float64(n) / float64(r.MinChars)
		case n > r.MaxChars && r.MaxChars > 0:
			penalty = float64(r.MaxChars) / float64(n)
		}
		sc.Score *= penalty
		reranked[i] = sc
	}

	sortByScore(reranked)
	return reranked
}

// -----------------------------------------------------------------------------
// 元数据加权
// -----------------------------------------------------------------------------

// MetadataBoostReranker 按块元数据的键值命中加分。
// Boosts 形如 {"content_type": {"text/markdown": 0.1}}。
type MetadataBoostReranker struct {
	Boosts map[string]map[string]float64
}

// Name returns the reranker name.
func (r *MetadataBoostReranker) Name() string { return "metadata_boost" }

// Rerank adds configured boosts for matching metadata values.
func (r *MetadataBoostReranker) Rerank(query string, results []types.ScoredChunk) []types.ScoredChunk {
	if len(r.Boosts) == 0 {
		return results
	}

	reranked := make([]types.ScoredChunk, len(results))
	for i, sc := range results {
		for key, values := range r.Boosts {
			v, ok := sc.Chunk.Metadata[key].(string)
			if !ok {
				continue
			}
			if boost, ok := values[v]; ok {
				sc.Score += boost
			}
		}
		reranked[i] = sc
	}

	sortByScore(reranked)
	return reranked
}

// -----------------------------------------------------------------------------
// 组合重排序
// -----------------------------------------------------------------------------

// EnsembleReranker 对多个重排序器的输出分数做加权平均。
type EnsembleReranker struct {
	Rerankers []Reranker
	Weights   []float64
}

// Name returns the reranker name.
func (r *EnsembleReranker) Name() string { return "ensemble" }

// Rerank combines member scores per chunk by weighted average.
func (r *EnsembleReranker) Rerank(query string, results []types.ScoredChunk) []types.ScoredChunk {
	if len(r.Rerankers) == 0 {
		return results
	}

	var totalWeight float64
	combined := make(map[string]float64, len(results))
	for i, member := range r.Rerankers {
		w := 1.0
		if i < len(r.Weights) {
			w = r.Weights[i]
		}
		totalWeight += w
		for _, sc := range member.Rerank(query, results) {
			combined[sc.Chunk.ID] += sc.Score * w
		}
	}

	reranked := make([]types.ScoredChunk, len(results))
	for i, sc := range results {
		sc.Score = combined[sc.Chunk.ID] / totalWeight
		reranked[i] = sc
	}

	sortByScore(reranked)
	return reranked
}
