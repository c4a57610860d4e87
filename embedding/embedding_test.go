package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestHashProviderDeterministic(t *testing.T) {
	p := NewHashProvider(128)

	a, err := p.EmbedQuery(context.Background(), "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.EmbedQuery(context.Background(), "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same input should produce identical embeddings")
		}
	}
	if len(a) != 128 {
		t.Errorf("dimensions = %d, want 128", len(a))
	}
}

func TestHashProviderNormalized(t *testing.T) {
	p := NewHashProvider(64)
	vec, err := p.EmbedQuery(context.Background(), "normalize me please")
	if err != nil {
		t.Fatal(err)
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if math.Abs(norm-1.0) > 1e-9 {
		t.Errorf("L2 norm = %f, want 1.0", math.Sqrt(norm))
	}
}

func TestHashProviderSimilarity(t *testing.T) {
	p := NewHashProvider(256)
	ctx := context.Background()

	base, _ := p.EmbedQuery(ctx, "golang concurrency patterns with channels")
	similar, _ := p.EmbedQuery(ctx, "concurrency patterns in golang channels")
	unrelated, _ := p.EmbedQuery(ctx, "banana bread recipe with walnuts")

	simScore := dot(base, similar)
	unrelScore := dot(base, unrelated)
	if simScore <= unrelScore {
		t.Errorf("similar text score %f should beat unrelated %f", simScore, unrelScore)
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestTokenizeWordsCJK(t *testing.T) {
	tokens := tokenizeWords("Hello 世界 test")
	want := []string{"hello", "世", "界", "test"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v", tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

// countingProvider 记录批次调用，验证 Embedder 的切批行为。
type countingProvider struct {
	*HashProvider
	mu      sync.Mutex
	batches []int
}

func (c *countingProvider) EmbedDocuments(ctx context.Context, docs []string) ([][]float64, error) {
	c.mu.Lock()
	c.batches = append(c.batches, len(docs))
	c.mu.Unlock()
	return c.HashProvider.EmbedDocuments(ctx, docs)
}

func (c *countingProvider) MaxBatchSize() int { return 10 }

func TestEmbedderBatching(t *testing.T) {
	cp := &countingProvider{HashProvider: NewHashProvider(32)}
	e := NewEmbedder(cp, 10, 2, zap.NewNop())

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("document number %d", i)
	}

	vecs, err := e.EmbedDocuments(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 25 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 32 {
			t.Fatalf("vector %d has dim %d", i, len(v))
		}
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	if len(cp.batches) != 3 {
		t.Errorf("expected 3 batches (10+10+5), got %v", cp.batches)
	}
}

func TestEmbedderEmptyInput(t *testing.T) {
	e := NewEmbedder(NewHashProvider(16), 0, 0, nil)
	vecs, err := e.EmbedDocuments(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if vecs != nil {
		t.Errorf("expected nil for empty input")
	}
}
