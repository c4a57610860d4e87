package storage

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

// ====== 内存存储（用于测试和小规模应用）======

// MemoryStore 内存块存储，带暂存区。
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]types.Chunk
	staged map[string]types.Chunk
	logger *zap.Logger
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		chunks: make(map[string]types.Chunk),
		staged: make(map[string]types.Chunk),
		logger: logger,
	}
}

// Add 写入块并立即可检索
func (s *MemoryStore) Add(ctx context.Context, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return types.NewError(types.ErrStorageFailure, "chunk has no id")
		}
		s.chunks[c.ID] = c
	}

	s.logger.Debug("chunks added",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(s.chunks)))
	return nil
}

// Get 按 ID 取块
func (s *MemoryStore) Get(ctx context.Context, id string) (types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[id]
	if !ok {
		return types.Chunk{}, types.NewError(types.ErrChunkNotFound, "chunk not found: "+id)
	}
	return c, nil
}

// Search 按向量余弦相似度返回 topK
func (s *MemoryStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]types.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 || topK <= 0 {
		return []types.ScoredChunk{}, nil
	}

	results := make([]types.ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		results = append(results, types.ScoredChunk{
			Chunk: c,
			Score: CosineSimilarity(queryEmbedding, c.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// All 返回全部可检索的块
func (s *MemoryStore) All(ctx context.Context) ([]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]types.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		all = append(all, c)
	}
	return all, nil
}

// ListIDs 返回全部可检索块的 ID
func (s *MemoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete 按 ID 删除块
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

// DeleteByDocument 删除某文档的全部块
func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
			removed++
		}
	}
	return removed, nil
}

// Count 返回可检索块数量
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Clear 清空存储（含暂存区）
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = make(map[string]types.Chunk)
	s.staged = make(map[string]types.Chunk)
	return nil
}

// ====== 暂存区 ======

// Stage 写入暂存区，对检索不可见
func (s *MemoryStore) Stage(ctx context.Context, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return types.NewError(types.ErrStorageFailure, "chunk has no id")
		}
		s.staged[c.ID] = c
	}
	return nil
}

// ListStaged 列出暂存块
func (s *MemoryStore) ListStaged(ctx context.Context) ([]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staged := make([]types.Chunk, 0, len(s.staged))
	for _, c := range s.staged {
		staged = append(staged, c)
	}
	return staged, nil
}

// Promote 把暂存块晋升为可检索。任何未知 ID 导致整体失败，不做部分晋升。
func (s *MemoryStore) Promote(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.staged[id]; !ok {
			return types.NewError(types.ErrChunkNotFound, "staged chunk not found: "+id)
		}
	}
	for _, id := range ids {
		s.chunks[id] = s.staged[id]
		delete(s.staged, id)
	}

	s.logger.Info("staged chunks promoted", zap.Int("count", len(ids)))
	return nil
}

// DiscardStaged 丢弃暂存块
func (s *MemoryStore) DiscardStaged(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.staged, id)
	}
	return nil
}
