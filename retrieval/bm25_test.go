package retrieval

import (
	"testing"

	"github.com/kbflow/kbflow/types"
)

func testChunks() []types.Chunk {
	return []types.Chunk{
		{ID: "c1", Content: "Go channels make concurrent programming simple"},
		{ID: "c2", Content: "Redis is an in-memory data store used for caching"},
		{ID: "c3", Content: "Goroutines and channels are Go concurrency primitives"},
		{ID: "c4", Content: "PostgreSQL is a relational database"},
	}
}

func TestBM25SearchRanksRelevantFirst(t *testing.T) {
	idx := NewBM25Index(0, 0)
	idx.Build(testChunks())

	results := idx.Search("go channels concurrency", 4)
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Chunk.ID != "c3" && results[0].Chunk.ID != "c1" {
		t.Errorf("top result = %s, want c1 or c3", results[0].Chunk.ID)
	}
	for _, r := range results {
		if r.Chunk.ID == "c4" {
			t.Error("c4 shares no terms with the query, should be dropped")
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Error("results not sorted by score descending")
		}
	}
}

func TestBM25SearchTopK(t *testing.T) {
	idx := NewBM25Index(1.5, 0.75)
	idx.Build(testChunks())

	results := idx.Search("go", 1)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestBM25EmptyIndex(t *testing.T) {
	idx := NewBM25Index(1.5, 0.75)
	idx.Build(nil)

	if results := idx.Search("anything", 5); len(results) != 0 {
		t.Errorf("empty index returned %d results", len(results))
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d", idx.Size())
	}
}

func TestBM25EmptyQuery(t *testing.T) {
	idx := NewBM25Index(1.5, 0.75)
	idx.Build(testChunks())

	if results := idx.Search("", 5); len(results) != 0 {
		t.Errorf("empty query returned %d results", len(results))
	}
	if results := idx.Search("!!! ???", 5); len(results) != 0 {
		t.Errorf("punctuation-only query returned %d results", len(results))
	}
}

func TestBM25CJKQuery(t *testing.T) {
	idx := NewBM25Index(1.5, 0.75)
	idx.Build([]types.Chunk{
		{ID: "zh1", Content: "向量检索用于语义搜索"},
		{ID: "zh2", Content: "消息队列用于异步处理"},
	})

	results := idx.Search("向量检索", 2)
	if len(results) == 0 {
		t.Fatal("expected CJK match")
	}
	if results[0].Chunk.ID != "zh1" {
		t.Errorf("top result = %s, want zh1", results[0].Chunk.ID)
	}
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Hello, World! 你好 go123")
	want := []string{"hello", "world", "你", "好", "go123"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v", tokens)
	}
	for i, tok := range tokens {
		if tok != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tok, want[i])
		}
	}
}
