package types

import "time"

// DocumentStatus tracks a document through the ingestion lifecycle.
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentStaged  DocumentStatus = "staged"
	DocumentIndexed DocumentStatus = "indexed"
	DocumentFailed  DocumentStatus = "failed"
	DocumentDeleted DocumentStatus = "deleted"
)

// Document is a raw unit of knowledge before chunking.
type Document struct {
	ID          string         `json:"id"`
	Source      string         `json:"source,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
}

// Chunk is an embeddable fragment of a document.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id,omitempty"`
	Content    string         `json:"content"`
	Index      int            `json:"index"`
	TokenCount int            `json:"token_count,omitempty"`
	Embedding  []float64      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ScoredChunk pairs a chunk with its relevance score for a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Citation points an answer fragment back to a source chunk.
type Citation struct {
	Marker  int    `json:"marker"`
	ChunkID string `json:"chunk_id"`
	Source  string `json:"source,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// QueryResult is the final product of answering a query.
type QueryResult struct {
	Query     string         `json:"query"`
	Answer    string         `json:"answer"`
	Sources   []ScoredChunk  `json:"sources,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Cached    bool           `json:"cached,omitempty"`
	Elapsed   time.Duration  `json:"elapsed,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
