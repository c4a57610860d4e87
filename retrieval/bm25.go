// Package retrieval 实现知识库检索引擎：
// 语义检索、BM25 关键词检索、混合检索与可选重排序。
package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🔍 BM25 关键词索引
// =============================================================================

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// BM25Index 是基于块内容构建的倒排词频索引。
// 重建整个索引比增量维护简单得多，且在目标规模下足够快。
type BM25Index struct {
	k1 float64
	b  float64

	chunks    []types.Chunk
	termFreqs []map[string]int
	docLens   []int
	idf       map[string]float64
	avgDocLen float64
}

// NewBM25Index creates an empty index with standard BM25 parameters.
func NewBM25Index(k1, b float64) *BM25Index {
	if k1 <= 0 {
		k1 = defaultK1
	}
	if b <= 0 {
		b = defaultB
	}
	return &BM25Index{k1: k1, b: b, idf: make(map[string]float64)}
}

// Build 用给定的块重建索引。
func (idx *BM25Index) Build(chunks []types.Chunk) {
	idx.chunks = chunks
	idx.termFreqs = make([]map[string]int, len(chunks))
	idx.docLens = make([]int, len(chunks))
	idx.idf = make(map[string]float64)

	docFreq := make(map[string]int)
	totalLen := 0

	for i, chunk := range chunks {
		tokens := tokenize(chunk.Content)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)

		for term := range tf {
			docFreq[term]++
		}
	}

	if len(chunks) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(chunks))
	}

	// 计算 IDF 值
	n := float64(len(chunks))
	for term, df := range docFreq {
		idx.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
}

// Size 返回已索引的块数量。
func (idx *BM25Index) Size() int { return len(idx.chunks) }

// Search 返回 BM25 得分最高的 topK 个块，零分结果被丢弃。
func (idx *BM25Index) Search(query string, topK int) []types.ScoredChunk {
	if topK <= 0 || len(idx.chunks) == 0 {
		return nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scored := make([]types.ScoredChunk, 0, len(idx.chunks))
	for i, chunk := range idx.chunks {
		score := idx.score(queryTerms, i)
		if score > 0 {
			scored = append(scored, types.ScoredChunk{Chunk: chunk, Score: score})
		}
	}

	sort.Slice(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// score 计算单个文档对查询词的 BM25 得分。
func (idx *BM25Index) score(queryTerms []string, doc int) float64 {
	tf := idx.termFreqs[doc]
	docLen := float64(idx.docLens[doc])

	var score float64
	for _, term := range queryTerms {
		freq, ok := tf[term]
		if !ok {
			continue
		}
		idfVal := idx.idf[term]
		f := float64(freq)
		numerator := f * (idx.k1 + 1)
		denominator := f + idx.k1*(1-idx.b+idx.b*docLen/idx.avgDocLen)
		score += idfVal * numerator / denominator
	}
	return score
}

// tokenize 小写分词；CJK 字符逐字作为 token。
func tokenize(text string) []string {
	var tokens []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			tokens = append(tokens, sb.String())
			sb.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			flush()
			tokens = append(tokens, string(r))
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
