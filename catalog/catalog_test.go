package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestRegisterAndGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	doc := types.Document{
		ID:          "doc-1",
		Source:      "notes/a.md",
		ContentType: "text/markdown",
		Content:     "hello world",
	}
	require.NoError(t, c.Register(ctx, doc, 3, types.DocumentIndexed))

	rec, err := c.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md", rec.Source)
	assert.Equal(t, 3, rec.ChunkCount)
	assert.Equal(t, string(types.DocumentIndexed), rec.Status)
	assert.Equal(t, Checksum("hello world"), rec.Checksum)
}

func TestGetMissing(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Get(context.Background(), "nope")
	assert.Equal(t, types.ErrDocumentNotFound, types.GetErrorCode(err))
}

func TestFindByChecksum(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	doc := types.Document{ID: "doc-1", Content: "duplicate me"}
	require.NoError(t, c.Register(ctx, doc, 1, types.DocumentIndexed))

	rec, found, err := c.FindByChecksum(ctx, Checksum("duplicate me"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "doc-1", rec.ID)

	_, found, err = c.FindByChecksum(ctx, Checksum("something else"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetStatusAndList(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, types.Document{ID: "a", Content: "1"}, 1, types.DocumentStaged))
	require.NoError(t, c.Register(ctx, types.Document{ID: "b", Content: "2"}, 1, types.DocumentIndexed))

	require.NoError(t, c.SetStatus(ctx, "a", types.DocumentIndexed))

	indexed, err := c.List(ctx, types.DocumentIndexed)
	require.NoError(t, err)
	assert.Len(t, indexed, 2)

	all, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = c.SetStatus(ctx, "missing", types.DocumentIndexed)
	assert.Equal(t, types.ErrDocumentNotFound, types.GetErrorCode(err))
}

func TestSetChunkCount(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, types.Document{ID: "a", Content: "1"}, 0, types.DocumentPending))
	require.NoError(t, c.SetChunkCount(ctx, "a", 4))

	rec, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, rec.ChunkCount)

	err = c.SetChunkCount(ctx, "missing", 1)
	assert.Equal(t, types.ErrDocumentNotFound, types.GetErrorCode(err))
}

func TestDeleteAndCount(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, types.Document{ID: "a", Content: "1"}, 1, types.DocumentIndexed))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, c.Delete(ctx, "a"))
	n, _ = c.Count(ctx)
	assert.EqualValues(t, 0, n)

	err = c.Delete(ctx, "a")
	assert.Equal(t, types.ErrDocumentNotFound, types.GetErrorCode(err))
}
