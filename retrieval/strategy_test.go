package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/storage"
	"github.com/kbflow/kbflow/types"
)

// seedStore 用哈希嵌入填充一个内存存储。
func seedStore(t *testing.T, provider embedding.Provider, contents map[string]string) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore(zap.NewNop())

	var chunks []types.Chunk
	for id, content := range contents {
		vec, err := provider.EmbedQuery(context.Background(), content)
		require.NoError(t, err)
		chunks = append(chunks, types.Chunk{ID: id, DocumentID: "d1", Content: content, Embedding: vec})
	}
	require.NoError(t, store.Add(context.Background(), chunks))
	return store
}

func TestSemanticStrategy(t *testing.T) {
	provider := embedding.NewHashProvider(128)
	store := seedStore(t, provider, map[string]string{
		"c1": "go concurrency patterns with channels",
		"c2": "redis caching layer design",
	})

	s := NewSemanticStrategy(store, provider)
	results, err := s.Retrieve(context.Background(), "go concurrency channels", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestKeywordStrategyRebuildsOnDirty(t *testing.T) {
	provider := embedding.NewHashProvider(128)
	store := seedStore(t, provider, map[string]string{
		"c1": "vector search basics",
	})

	s := NewKeywordStrategy(store, zap.NewNop())
	results, err := s.Retrieve(context.Background(), "vector search", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// 存储新增后索引需要失效才能看到新块
	vec, _ := provider.EmbedQuery(context.Background(), "keyword search basics")
	require.NoError(t, store.Add(context.Background(), []types.Chunk{
		{ID: "c2", DocumentID: "d1", Content: "keyword search basics", Embedding: vec},
	}))

	results, err = s.Retrieve(context.Background(), "keyword", 5)
	require.NoError(t, err)
	assert.Empty(t, results, "stale index should not see the new chunk")

	s.MarkDirty()
	results, err = s.Retrieve(context.Background(), "keyword", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestHybridStrategyMergesLegs(t *testing.T) {
	provider := embedding.NewHashProvider(128)
	store := seedStore(t, provider, map[string]string{
		"c1": "go concurrency patterns with channels",
		"c2": "redis caching layer design",
		"c3": "channels in go pipelines",
	})

	s := NewHybridStrategy(
		NewSemanticStrategy(store, provider),
		NewKeywordStrategy(store, zap.NewNop()),
		0.7,
	)

	results, err := s.Retrieve(context.Background(), "go channels", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := []string{results[0].Chunk.ID, results[1].Chunk.ID}
	assert.NotContains(t, ids, "c2")
	assert.LessOrEqual(t, results[1].Score, results[0].Score)
}

func TestNormalizeScores(t *testing.T) {
	results := []types.ScoredChunk{
		{Chunk: types.Chunk{ID: "a"}, Score: 2},
		{Chunk: types.Chunk{ID: "b"}, Score: 4},
		{Chunk: types.Chunk{ID: "c"}, Score: 6},
	}
	normalizeScores(results)
	assert.Equal(t, 0.0, results[0].Score)
	assert.Equal(t, 0.5, results[1].Score)
	assert.Equal(t, 1.0, results[2].Score)

	// 全部相同时置为 1.0
	equal := []types.ScoredChunk{
		{Chunk: types.Chunk{ID: "a"}, Score: 3},
		{Chunk: types.Chunk{ID: "b"}, Score: 3},
	}
	normalizeScores(equal)
	assert.Equal(t, 1.0, equal[0].Score)
	assert.Equal(t, 1.0, equal[1].Score)
}

func TestMergeResultsWeights(t *testing.T) {
	semantic := []types.ScoredChunk{
		{Chunk: types.Chunk{ID: "both"}, Score: 1},
		{Chunk: types.Chunk{ID: "semonly"}, Score: 0.5},
	}
	keyword := []types.ScoredChunk{
		{Chunk: types.Chunk{ID: "both"}, Score: 1},
		{Chunk: types.Chunk{ID: "kwonly"}, Score: 0.5},
	}

	merged := mergeResults(semantic, keyword, 0.7)
	require.Len(t, merged, 3)
	// "both" 在两条腿都归一化为 1.0：0.7*1 + 0.3*1 = 1.0
	assert.Equal(t, "both", merged[0].Chunk.ID)
	assert.InDelta(t, 1.0, merged[0].Score, 1e-9)
}
