package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/gloombot/internal/vector"
)

func TestBackend_OpenMissing(t *testing.T) {
	_, err := New().Open(context.Background(), "nope", false)
	assert.ErrorIs(t, err, vector.ErrCollectionNotFound)
}

func TestIndex_UpsertKeepsPosition(t *testing.T) {
	ctx := context.Background()
	idx, err := New().Open(ctx, "c", true)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []vector.Record{
		{ID: "a", Document: "old", Embedding: []float32{1, 0}},
		{ID: "b", Document: "b", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, idx.Upsert(ctx, []vector.Record{
		{ID: "a", Document: "new", Embedding: []float32{1, 0}},
	}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := idx.Search(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "new", got[0].Document)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := New().Open(ctx, "c", true)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []vector.Record{{ID: "a", Embedding: []float32{1, 0}}}))
	err = idx.Upsert(ctx, []vector.Record{{ID: "b", Embedding: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestIndex_UpsertCopiesEmbedding(t *testing.T) {
	ctx := context.Background()
	idx, err := New().Open(ctx, "c", true)
	require.NoError(t, err)

	emb := []float32{1, 0}
	require.NoError(t, idx.Upsert(ctx, []vector.Record{{ID: "a", Embedding: emb}}))
	emb[0], emb[1] = 0, 1

	got, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
}
