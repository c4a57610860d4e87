package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// HashProvider 是一个确定性的离线嵌入提供者。
// 将文本按词哈希到固定维度的桶上并做 L2 归一化，
// 相同词汇重叠的文本会得到较高的余弦相似度。
// 用于离线运行、冒烟测试和没有外部嵌入服务的环境。
type HashProvider struct {
	dimensions int
}

// NewHashProvider creates a deterministic local embedding provider.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashProvider{dimensions: dimensions}
}

// Name returns the provider name.
func (p *HashProvider) Name() string { return "hash-embedding" }

// Dimensions returns the embedding dimensionality.
func (p *HashProvider) Dimensions() int { return p.dimensions }

// MaxBatchSize is unbounded for local hashing; return a generous cap.
func (p *HashProvider) MaxBatchSize() int { return 4096 }

// Embed generates embeddings for the given inputs.
func (p *HashProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	embeddings := make([]EmbeddingData, len(req.Input))
	for i, text := range req.Input {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = EmbeddingData{
			Index:     i,
			Embedding: p.embedOne(text),
			Object:    "embedding",
		}
	}
	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      "fnv-bucket",
		Embeddings: embeddings,
		CreatedAt:  time.Now(),
	}, nil
}

// EmbedQuery embeds a single query.
func (p *HashProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.embedOne(query), nil
}

// EmbedDocuments embeds multiple documents.
func (p *HashProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	result := make([][]float64, len(documents))
	for i, doc := range documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result[i] = p.embedOne(doc)
	}
	return result, nil
}

// embedOne 把文本的每个词哈希进一个桶，再做 L2 归一化。
func (p *HashProvider) embedOne(text string) []float64 {
	vec := make([]float64, p.dimensions)
	for _, token := range tokenizeWords(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%p.dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// tokenizeWords 小写分词；CJK 字符逐字作为 token。
func tokenizeWords(text string) []string {
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
