// Package storage provides chunk stores with vector search and an
// optional staging area: staged chunks stay invisible to search until
// promoted.
package storage

import (
	"context"
	"math"

	"github.com/kbflow/kbflow/types"
)

// Store 块存储接口
type Store interface {
	// Add 写入块并立即可检索
	Add(ctx context.Context, chunks []types.Chunk) error

	// Get 按 ID 取块
	Get(ctx context.Context, id string) (types.Chunk, error)

	// Search 按向量余弦相似度返回 topK
	Search(ctx context.Context, queryEmbedding []float64, topK int) ([]types.ScoredChunk, error)

	// All 返回全部可检索的块（关键词检索建索引用）
	All(ctx context.Context) ([]types.Chunk, error)

	// ListIDs 返回全部可检索块的 ID
	ListIDs(ctx context.Context) ([]string, error)

	// Delete 按 ID 删除块
	Delete(ctx context.Context, ids []string) error

	// DeleteByDocument 删除某文档的全部块，返回删除数量
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Count 返回可检索块数量
	Count(ctx context.Context) (int, error)

	// Clear 清空存储（含暂存区）
	Clear(ctx context.Context) error
}

// Stager is an optional interface for stores that support a staging
// workflow. Staged chunks are invisible to Search/All until promoted.
// Use type assertion to check support:
//
//	if s, ok := store.(Stager); ok { s.Stage(ctx, chunks) }
type Stager interface {
	// Stage 写入暂存区
	Stage(ctx context.Context, chunks []types.Chunk) error

	// ListStaged 列出暂存块
	ListStaged(ctx context.Context) ([]types.Chunk, error)

	// Promote 把暂存块晋升为可检索；未知 ID 报错
	Promote(ctx context.Context, ids []string) error

	// DiscardStaged 丢弃暂存块
	DiscardStaged(ctx context.Context, ids []string) error
}

// CosineSimilarity 计算余弦相似度。
// 维度不匹配或零向量时返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
