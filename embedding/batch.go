package embedding

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Embedder 将大批文档切成批次并发送往 Provider，保持结果顺序。
type Embedder struct {
	provider    Provider
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// NewEmbedder creates a batching embedder on top of a provider.
func NewEmbedder(provider Provider, batchSize, concurrency int, logger *zap.Logger) *Embedder {
	if batchSize <= 0 || batchSize > provider.MaxBatchSize() {
		batchSize = provider.MaxBatchSize()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		provider:    provider,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Provider returns the underlying embedding provider.
func (e *Embedder) Provider() Provider { return e.provider }

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return e.provider.EmbedQuery(ctx, query)
}

// EmbedDocuments embeds all texts, batching and fanning out concurrently.
// The returned slice is index-aligned with the input.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float64, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			vecs, err := e.provider.EmbedDocuments(gctx, texts[start:end])
			if err != nil {
				e.logger.Warn("embedding batch failed",
					zap.Int("start", start),
					zap.Int("size", end-start),
					zap.Error(err),
				)
				return err
			}
			copy(result[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
