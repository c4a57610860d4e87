package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/types"
)

func scoredChunks() []types.ScoredChunk {
	return []types.ScoredChunk{
		{Chunk: types.Chunk{ID: "c1", Content: "Go was released in 2009.", Metadata: map[string]any{"source": "go-history.md"}}, Score: 0.9},
		{Chunk: types.Chunk{ID: "c2", Content: "Go has goroutines."}, Score: 0.8},
	}
}

func TestBuildContext(t *testing.T) {
	b := &CitationBuilder{}
	ctx := b.BuildContext(scoredChunks())
	assert.Contains(t, ctx, "[1] Go was released in 2009.")
	assert.Contains(t, ctx, "[2] Go has goroutines.")
}

func TestCitations(t *testing.T) {
	b := &CitationBuilder{}
	citations := b.Citations(scoredChunks())
	require.Len(t, citations, 2)
	assert.Equal(t, 1, citations[0].Marker)
	assert.Equal(t, "c1", citations[0].ChunkID)
	assert.Equal(t, "go-history.md", citations[0].Source)
	assert.Equal(t, "", citations[1].Source)
}

func TestCitationSnippetTruncated(t *testing.T) {
	b := &CitationBuilder{}
	long := strings.Repeat("词", 300)
	citations := b.Citations([]types.ScoredChunk{{Chunk: types.Chunk{ID: "c1", Content: long}}})
	assert.True(t, strings.HasSuffix(citations[0].Snippet, "..."))
	assert.Less(t, len([]rune(citations[0].Snippet)), 130)
}

func TestUsedMarkers(t *testing.T) {
	b := &CitationBuilder{}
	markers := b.UsedMarkers("See [2] and [1], also [2] again, and bogus [9].", 3)
	assert.Equal(t, []int{1, 2}, markers)

	assert.Empty(t, b.UsedMarkers("no markers here", 3))
}

func TestAppendReferences(t *testing.T) {
	b := &CitationBuilder{}
	citations := b.Citations(scoredChunks())

	out := b.AppendReferences("Go appeared in 2009 [1].", citations)
	assert.Contains(t, out, "References:")
	assert.Contains(t, out, "[1] go-history.md")
	assert.NotContains(t, out, "[2] Go has goroutines")

	// 无标记时不追加引用区
	plain := b.AppendReferences("no citations", citations)
	assert.Equal(t, "no citations", plain)
}
