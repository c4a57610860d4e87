package processing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/types"
)

// Processor 把原始文档加工成带向量的块：
// 元数据提取 → 分块 → 批量向量化。
type Processor struct {
	chunker  *Chunker
	embedder *embedding.Embedder
	logger   *zap.Logger
}

// NewProcessor creates a document processor.
func NewProcessor(chunker *Chunker, embedder *embedding.Embedder, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
	}
}

// Process chunks and embeds a document. Empty documents are rejected.
func (p *Processor) Process(ctx context.Context, doc types.Document) ([]types.Chunk, error) {
	if doc.Content == "" {
		return nil, types.NewError(types.ErrEmptyDocument, "document has no content")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	start := time.Now()
	meta := ExtractMetadata(doc.Content, doc.Metadata)
	if doc.Source != "" {
		meta["source"] = doc.Source
	}

	chunks := p.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return nil, types.NewError(types.ErrEmptyDocument, "document produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "embedding failed").
			WithCause(err).WithRetryable(types.IsRetryable(err))
	}

	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].Embedding = vectors[i]
		// 每块持有独立的元数据副本，避免块间共享同一个 map
		cloned := make(map[string]any, len(meta))
		for k, v := range meta {
			cloned[k] = v
		}
		chunks[i].Metadata = cloned
	}

	p.logger.Info("document processed",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))

	return chunks, nil
}
