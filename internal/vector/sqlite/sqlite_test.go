package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/gloombot/internal/vector"
)

func newTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chroma")
	b, err := New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, dir
}

func TestNew_CreatesDatabaseFile(t *testing.T) {
	_, dir := newTestBackend(t)

	_, err := os.Stat(filepath.Join(dir, FileName))
	assert.NoError(t, err)
}

func TestBackend_OpenMissing(t *testing.T) {
	b, _ := newTestBackend(t)

	_, err := b.Open(context.Background(), "pdf_knowledge_base", false)
	assert.ErrorIs(t, err, vector.ErrCollectionNotFound)
}

func TestIndex_UpsertSearchCount(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	idx, err := b.Open(ctx, "rules", true)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []vector.Record{
		{ID: "r_page0_chunk0", Document: "loot", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"source": "r.pdf", "page": 0}},
		{ID: "r_page0_chunk1", Document: "move", Embedding: []float32{0, 1, 0}, Metadata: map[string]any{"source": "r.pdf", "page": 0}},
		{ID: "r_page1_chunk0", Document: "attack", Embedding: []float32{0.8, 0.2, 0}, Metadata: map[string]any{"source": "r.pdf", "page": 1}},
	}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r_page0_chunk0", got[0].ID)
	assert.Equal(t, "loot", got[0].Document)
	assert.Equal(t, "r_page1_chunk0", got[1].ID)
	assert.Equal(t, 1, got[1].Metadata["page"])
	assert.Equal(t, "r.pdf", got[1].Metadata["source"])
}

func TestIndex_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	idx, err := b.Open(ctx, "rules", true)
	require.NoError(t, err)

	rec := vector.Record{ID: "a", Document: "v1", Embedding: []float32{1, 0}}
	require.NoError(t, idx.Upsert(ctx, []vector.Record{rec}))
	rec.Document = "v2"
	require.NoError(t, idx.Upsert(ctx, []vector.Record{rec}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "v2", got[0].Document)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	idx, err := b.Open(ctx, "rules", true)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []vector.Record{{ID: "a", Embedding: []float32{1, 0}}}))
	err = idx.Upsert(ctx, []vector.Record{{ID: "b", Embedding: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	one, err := b.Open(ctx, "one", true)
	require.NoError(t, err)
	two, err := b.Open(ctx, "two", true)
	require.NoError(t, err)

	require.NoError(t, one.Upsert(ctx, []vector.Record{{ID: "a", Embedding: []float32{1, 0}}}))

	n, err := two.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := New(dir)
	require.NoError(t, err)
	idx, err := b.Open(ctx, "rules", true)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []vector.Record{{ID: "a", Document: "kept", Embedding: []float32{0.5, 0.5}}}))
	require.NoError(t, b.Close())

	b, err = New(dir)
	require.NoError(t, err)
	defer b.Close()

	idx, err = b.Open(ctx, "rules", false)
	require.NoError(t, err)
	got, err := idx.Search(ctx, []float32{0.5, 0.5}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Document)
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, in, decodeVector(encodeVector(in)))
}

func TestDecodeMetadata(t *testing.T) {
	got, err := decodeMetadata(`{"source":"rules.pdf","page":12,"score":0.5}`)
	require.NoError(t, err)
	assert.Equal(t, "rules.pdf", got["source"])
	assert.Equal(t, 12, got["page"])
	assert.Equal(t, 0.5, got["score"])

	got, err = decodeMetadata("null")
	require.NoError(t, err)
	assert.Nil(t, got)
}
