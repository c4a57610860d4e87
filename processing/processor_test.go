package processing

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/types"
)

func newTestProcessor() *Processor {
	chunker := NewChunker(ChunkerConfig{
		Strategy:     ChunkingRecursive,
		ChunkSize:    50,
		MinChunkSize: 1,
	}, &mockTokenizer{}, zap.NewNop())
	embedder := embedding.NewEmbedder(embedding.NewHashProvider(64), 0, 2, zap.NewNop())
	return NewProcessor(chunker, embedder, zap.NewNop())
}

func TestProcessDocument(t *testing.T) {
	p := newTestProcessor()
	doc := types.Document{
		Source:  "notes/golang.md",
		Content: "# Go Concurrency\n\nGoroutines are lightweight threads managed by the Go runtime. Channels connect goroutines.",
	}

	chunks, err := p.Process(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, c := range chunks {
		if c.ID == "" {
			t.Errorf("chunk %d missing id", i)
		}
		if len(c.Embedding) != 64 {
			t.Errorf("chunk %d embedding dim = %d", i, len(c.Embedding))
		}
		if c.Metadata["source"] != "notes/golang.md" {
			t.Errorf("chunk %d missing source metadata", i)
		}
		if c.Metadata["title"] != "Go Concurrency" {
			t.Errorf("chunk %d title = %v", i, c.Metadata["title"])
		}
	}
}

func TestProcessChunkMetadataIsolated(t *testing.T) {
	p := newTestProcessor()
	doc := types.Document{
		Source:  "notes/long.md",
		Content: "Goroutines are lightweight threads managed by the Go runtime scheduler, multiplexed onto a small number of operating system threads.\n\nChannels carry typed values between goroutines, and the select statement lets a goroutine wait on several channel operations at once.\n\nMutexes from the sync package guard shared state when channel-based ownership transfer does not fit the access pattern of the data.",
	}

	chunks, err := p.Process(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("need at least 2 chunks, got %d", len(chunks))
	}

	chunks[0].Metadata["section"] = "intro"
	if _, ok := chunks[1].Metadata["section"]; ok {
		t.Error("metadata write on one chunk leaked into a sibling")
	}
}

func TestProcessEmptyDocument(t *testing.T) {
	p := newTestProcessor()
	_, err := p.Process(context.Background(), types.Document{Content: ""})
	if err == nil {
		t.Fatal("expected error for empty document")
	}
	if types.GetErrorCode(err) != types.ErrEmptyDocument {
		t.Errorf("code = %s", types.GetErrorCode(err))
	}
}
