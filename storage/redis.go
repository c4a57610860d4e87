package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

// ====== Redis 存储 ======

// RedisStore 把块 JSON 存在 Redis 里：
//
//	<prefix>ids        可检索块 ID 集合
//	<prefix>staged     暂存块 ID 集合
//	<prefix>data:<id>  块 JSON
//
// 向量检索把候选块拉到本地算余弦相似度，适合中小规模集合；
// 超大规模应换专用向量数据库。
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 块存储
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "kbflow:chunk:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisStore) idsKey() string           { return s.prefix + "ids" }
func (s *RedisStore) stagedKey() string        { return s.prefix + "staged" }
func (s *RedisStore) dataKey(id string) string { return s.prefix + "data:" + id }

// writeChunks 写块 JSON 并把 ID 加入给定集合。
func (s *RedisStore) writeChunks(ctx context.Context, chunks []types.Chunk, setKey string) error {
	if len(chunks) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, c := range chunks {
		if c.ID == "" {
			return types.NewError(types.ErrStorageFailure, "chunk has no id")
		}
		data, err := json.Marshal(c)
		if err != nil {
			return types.NewError(types.ErrStorageFailure, "failed to marshal chunk").WithCause(err)
		}
		pipe.Set(ctx, s.dataKey(c.ID), data, 0)
		pipe.SAdd(ctx, setKey, c.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStorageFailure, "redis write failed").WithCause(err).WithRetryable(true)
	}
	return nil
}

// loadChunks 按 ID 批量读块。
func (s *RedisStore) loadChunks(ctx context.Context, ids []string) ([]types.Chunk, error) {
	if len(ids) == 0 {
		return []types.Chunk{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.dataKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
	}

	chunks := make([]types.Chunk, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // id 集合里有但数据已丢失，跳过
		}
		var c types.Chunk
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			s.logger.Warn("skipping corrupt chunk payload", zap.Error(err))
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Add 写入块并立即可检索
func (s *RedisStore) Add(ctx context.Context, chunks []types.Chunk) error {
	return s.writeChunks(ctx, chunks, s.idsKey())
}

// Get 按 ID 取块
func (s *RedisStore) Get(ctx context.Context, id string) (types.Chunk, error) {
	data, err := s.client.Get(ctx, s.dataKey(id)).Result()
	if err == redis.Nil {
		return types.Chunk{}, types.NewError(types.ErrChunkNotFound, "chunk not found: "+id)
	}
	if err != nil {
		return types.Chunk{}, types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
	}

	var c types.Chunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return types.Chunk{}, types.NewError(types.ErrStorageFailure, "corrupt chunk payload").WithCause(err)
	}
	return c, nil
}

// Search 按向量余弦相似度返回 topK
func (s *RedisStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]types.ScoredChunk, error) {
	if topK <= 0 {
		return []types.ScoredChunk{}, nil
	}

	chunks, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]types.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
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
func (s *RedisStore) All(ctx context.Context) ([]types.Chunk, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadChunks(ctx, ids)
}

// ListIDs 返回全部可检索块的 ID
func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete 按 ID 删除块
func (s *RedisStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.dataKey(id))
		pipe.SRem(ctx, s.idsKey(), id)
		pipe.SRem(ctx, s.stagedKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStorageFailure, "redis delete failed").WithCause(err).WithRetryable(true)
	}
	return nil
}

// DeleteByDocument 删除某文档的全部块
func (s *RedisStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	chunks, err := s.All(ctx)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, c := range chunks {
		if c.DocumentID == documentID {
			ids = append(ids, c.ID)
		}
	}
	if err := s.Delete(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Count 返回可检索块数量
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.idsKey()).Result()
	if err != nil {
		return 0, types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
	}
	return int(n), nil
}

// Clear 清空存储（含暂存区）
func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
	}
	staged, err := s.client.SMembers(ctx, s.stagedKey()).Result()
	if err != nil {
		return types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
	}

	pipe := s.client.TxPipeline()
	for _, id := range append(ids, staged...) {
		pipe.Del(ctx, s.dataKey(id))
	}
	pipe.Del(ctx, s.idsKey())
	pipe.Del(ctx, s.stagedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStorageFailure, "redis clear failed").WithCause(err).WithRetryable(true)
	}
	return nil
}

// ====== 暂存区 ======

// Stage 写入暂存区，对检索不可见
func (s *RedisStore) Stage(ctx context.Context, chunks []types.Chunk) error {
	return s.writeChunks(ctx, chunks, s.stagedKey())
}

// ListStaged 列出暂存块
func (s *RedisStore) ListStaged(ctx context.Context) ([]types.Chunk, error) {
	ids, err := s.client.SMembers(ctx, s.stagedKey()).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
	}
	return s.loadChunks(ctx, ids)
}

// Promote 把暂存块晋升为可检索。先整体校验，不做部分晋升。
func (s *RedisStore) Promote(ctx context.Context, ids []string) error {
	for _, id := range ids {
		ok, err := s.client.SIsMember(ctx, s.stagedKey(), id).Result()
		if err != nil {
			return types.NewError(types.ErrStorageFailure, "redis read failed").WithCause(err).WithRetryable(true)
		}
		if !ok {
			return types.NewError(types.ErrChunkNotFound, "staged chunk not found: "+id)
		}
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.SRem(ctx, s.stagedKey(), id)
		pipe.SAdd(ctx, s.idsKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStorageFailure, "redis promote failed").WithCause(err).WithRetryable(true)
	}

	s.logger.Info("staged chunks promoted", zap.Int("count", len(ids)))
	return nil
}

// DiscardStaged 丢弃暂存块
func (s *RedisStore) DiscardStaged(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.SRem(ctx, s.stagedKey(), id)
		pipe.Del(ctx, s.dataKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStorageFailure, "redis discard failed").WithCause(err).WithRetryable(true)
	}
	return nil
}
