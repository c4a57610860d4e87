package storage

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

func chunk(id, docID, content string, embedding []float64) types.Chunk {
	return types.Chunk{ID: id, DocumentID: docID, Content: content, Embedding: embedding}
}

func TestMemoryStoreAddSearch(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	err := s.Add(ctx, []types.Chunk{
		chunk("c1", "d1", "go concurrency", []float64{1, 0, 0}),
		chunk("c2", "d1", "redis caching", []float64{0, 1, 0}),
		chunk("c3", "d2", "go channels", []float64{0.9, 0.1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float64{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("best match = %s, want c1", results[0].Chunk.ID)
	}
	if results[1].Chunk.ID != "c3" {
		t.Errorf("second match = %s, want c3", results[1].Chunk.ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results should be sorted by score descending")
	}
}

func TestMemoryStoreGetDelete(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	s.Add(ctx, []types.Chunk{chunk("c1", "d1", "x", []float64{1})})

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "x" {
		t.Errorf("content = %q", got.Content)
	}

	if err := s.Delete(ctx, []string{"c1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "c1"); types.GetErrorCode(err) != types.ErrChunkNotFound {
		t.Errorf("expected CHUNK_NOT_FOUND, got %v", err)
	}
}

func TestMemoryStoreDeleteByDocument(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	s.Add(ctx, []types.Chunk{
		chunk("c1", "d1", "a", []float64{1}),
		chunk("c2", "d1", "b", []float64{1}),
		chunk("c3", "d2", "c", []float64{1}),
	})

	removed, err := s.DeleteByDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestMemoryStoreStagingInvisibleToSearch(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	if err := s.Stage(ctx, []types.Chunk{chunk("s1", "d1", "staged", []float64{1, 0})}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float64{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatal("staged chunks must be invisible to search")
	}
	if count, _ := s.Count(ctx); count != 0 {
		t.Error("staged chunks must not count as live")
	}

	staged, _ := s.ListStaged(ctx)
	if len(staged) != 1 {
		t.Fatalf("staged = %d", len(staged))
	}

	if err := s.Promote(ctx, []string{"s1"}); err != nil {
		t.Fatal(err)
	}
	results, _ = s.Search(ctx, []float64{1, 0}, 10)
	if len(results) != 1 {
		t.Fatal("promoted chunk should be searchable")
	}
	staged, _ = s.ListStaged(ctx)
	if len(staged) != 0 {
		t.Error("promoted chunk should leave staging")
	}
}

func TestMemoryStorePromoteUnknownID(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	s.Stage(ctx, []types.Chunk{chunk("s1", "d1", "staged", []float64{1})})

	err := s.Promote(ctx, []string{"s1", "missing"})
	if types.GetErrorCode(err) != types.ErrChunkNotFound {
		t.Fatalf("expected CHUNK_NOT_FOUND, got %v", err)
	}

	// 整体失败：s1 仍应在暂存区
	staged, _ := s.ListStaged(ctx)
	if len(staged) != 1 {
		t.Error("failed promote must not partially apply")
	}
}

func TestMemoryStoreDiscardStaged(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	s.Stage(ctx, []types.Chunk{chunk("s1", "d1", "staged", []float64{1})})
	if err := s.DiscardStaged(ctx, []string{"s1"}); err != nil {
		t.Fatal(err)
	}
	staged, _ := s.ListStaged(ctx)
	if len(staged) != 0 {
		t.Error("discarded chunk should be gone")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors = %f", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors = %f", got)
	}
	// 维度不匹配返回 0
	if got := CosineSimilarity([]float64{1, 0}, []float64{1, 0, 0}); got != 0 {
		t.Errorf("dimension mismatch = %f, want 0", got)
	}
	if got := CosineSimilarity([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Errorf("zero vector = %f, want 0", got)
	}
}
