package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/gloombot/internal/graph"
	"github.com/efebarandurmaz/gloombot/internal/observability"
	"github.com/efebarandurmaz/gloombot/internal/pdf"
	"github.com/efebarandurmaz/gloombot/internal/pdf/pdftest"
	"github.com/efebarandurmaz/gloombot/internal/vector"
	"github.com/efebarandurmaz/gloombot/internal/vector/memory"
)

type fakeExtractor struct {
	pages []string
	err   error
}

func (f fakeExtractor) Pages(_ context.Context, _ string) ([]string, error) {
	return f.pages, f.err
}

// hashEmbedder derives a deterministic 4-dimensional vector from each text.
type hashEmbedder struct {
	calls  [][]string
	failOn string
}

func (e *hashEmbedder) Name() string { return "hash" }

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && t == e.failOn {
			return nil, errors.New("503 Service Unavailable")
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		s := h.Sum32()
		out[i] = []float32{float32(s & 0xff), float32(s >> 8 & 0xff), float32(s >> 16 & 0xff), 1}
	}
	return out, nil
}

type fakeLineage struct {
	refs []graph.ChunkRef
	err  error
}

func (f *fakeLineage) RecordChunk(_ context.Context, ref graph.ChunkRef) error {
	if f.err != nil {
		return f.err
	}
	f.refs = append(f.refs, ref)
	return nil
}

func (f *fakeLineage) ChunksForSource(_ context.Context, _ string) ([]graph.ChunkRef, error) {
	return f.refs, nil
}

func (f *fakeLineage) Close(context.Context) error { return nil }

func newIngester(pages []string, emb *hashEmbedder, opts ...Option) (*Ingester, *vector.Store) {
	store := vector.NewStore(memory.New(), emb, nil)
	return New(fakeExtractor{pages: pages}, emb, store, opts...), store
}

func allIDs(t *testing.T, c *vector.Collection) []string {
	t.Helper()
	res, err := c.Query(context.Background(), []string{"any"}, 100)
	require.NoError(t, err)
	return res.IDs[0]
}

func TestCreateCollection_TwoPages(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	in, store := newIngester([]string{"A\n\nB", "C"}, emb)

	col, report, err := in.CreateCollection(ctx, "/tmp/x.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, col.Name())

	// One embedding call per chunk, never batched.
	require.Len(t, emb.calls, 3)
	for _, call := range emb.calls {
		assert.Len(t, call, 1)
	}

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"x.pdf_page0_chunk0", "x.pdf_page0_chunk1", "x.pdf_page1_chunk0"}, allIDs(t, col))

	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 3, report.Stored)
	assert.Empty(t, report.Errors)

	_, err = store.GetCollection(ctx, DefaultCollection)
	assert.NoError(t, err)
}

func TestCreateCollection_StoresMetadata(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	in, _ := newIngester([]string{"", "Elements"}, emb)

	col, _, err := in.CreateCollection(ctx, "docs/rules.pdf", "rules")
	require.NoError(t, err)

	res, err := col.Query(ctx, []string{"Elements"}, 1)
	require.NoError(t, err)
	require.Len(t, res.IDs[0], 1)
	assert.Equal(t, "rules.pdf_page1_chunk0", res.IDs[0][0])
	assert.Equal(t, "Elements", res.Documents[0][0])
	assert.Equal(t, map[string]any{"source": "docs/rules.pdf", "page": 1}, res.Metadatas[0][0])
}

func TestCreateCollection_ReingestOverwrites(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	in, _ := newIngester([]string{"A\n\nB", "C\n\nD\n\nE"}, emb)

	_, _, err := in.CreateCollection(ctx, "rules.pdf", "")
	require.NoError(t, err)
	col, report, err := in.CreateCollection(ctx, "rules.pdf", "")
	require.NoError(t, err)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, report.Stored)
}

func TestCreateCollection_EmptyPagesOnly(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	in, _ := newIngester([]string{"", ""}, emb)

	col, report, err := in.CreateCollection(ctx, "blank.pdf", "")
	require.NoError(t, err)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, report.SkippedPages)
	assert.Empty(t, emb.calls)
}

func TestCreateCollection_WhitespacePage(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	in, _ := newIngester([]string{"  \n  "}, emb)

	col, report, err := in.CreateCollection(ctx, "ws.pdf", "")
	require.NoError(t, err)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, report.EmptyChunks)
	require.Len(t, emb.calls, 1)
	assert.Equal(t, []string{""}, emb.calls[0])
}

func TestCreateCollection_EmbedErrorAborts(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{failOn: "B"}
	in, store := newIngester([]string{"A\n\nB\n\nC"}, emb)

	col, report, err := in.CreateCollection(ctx, "rules.pdf", "")
	require.Error(t, err)
	assert.Nil(t, col)
	assert.Contains(t, err.Error(), "rules.pdf_page0_chunk1")
	require.NotNil(t, report)
	assert.Len(t, report.Errors, 1)
	assert.Equal(t, 1, report.Chunks)

	// The chunk upserted before the failure stays.
	got, err := store.GetCollection(ctx, DefaultCollection)
	require.NoError(t, err)
	n, err := got.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, report.Stored)
}

func TestCreateCollection_ExtractErrorAborts(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	boom := errors.New("open pdf: no such file")
	store := vector.NewStore(memory.New(), emb, nil)
	in := New(fakeExtractor{err: boom}, emb, store)

	_, report, err := in.CreateCollection(ctx, "missing.pdf", "")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, report.Errors, 1)

	_, err = store.GetCollection(ctx, DefaultCollection)
	assert.ErrorIs(t, err, vector.ErrCollectionNotFound)
}

func TestCreateCollection_RecordsLineage(t *testing.T) {
	ctx := context.Background()
	lineage := &fakeLineage{}
	in, _ := newIngester([]string{"A\n\nB"}, &hashEmbedder{}, WithLineage(lineage))

	_, report, err := in.CreateCollection(ctx, "docs/rules.pdf", "rules")
	require.NoError(t, err)
	assert.True(t, report.Lineage)

	assert.Equal(t, []graph.ChunkRef{
		{ID: "rules.pdf_page0_chunk0", Source: "docs/rules.pdf", Page: 0, Collection: "rules"},
		{ID: "rules.pdf_page0_chunk1", Source: "docs/rules.pdf", Page: 0, Collection: "rules"},
	}, lineage.refs)
}

func TestCreateCollection_LineageErrorAborts(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("neo4j unavailable")
	in, _ := newIngester([]string{"A\n\nB"}, &hashEmbedder{}, WithLineage(&fakeLineage{err: boom}))

	_, _, err := in.CreateCollection(ctx, "rules.pdf", "")
	assert.ErrorIs(t, err, boom)
}

func TestCreateCollection_CountsChunks(t *testing.T) {
	m := observability.NewMetrics()
	in, _ := newIngester([]string{"A\n\nB", "C"}, &hashEmbedder{}, WithMetrics(m))

	_, _, err := in.CreateCollection(context.Background(), "/tmp/x.pdf", "rules")
	require.NoError(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksIngested.WithLabelValues("rules")))
}

func TestCreateCollection_RealPDF(t *testing.T) {
	ctx := context.Background()
	path := pdftest.WriteFile(t, "rules.pdf", []string{"Rule A\n\nRule B", "Rule C", ""})
	emb := &hashEmbedder{}
	store := vector.NewStore(memory.New(), emb, nil)
	in := New(pdf.NewReader(), emb, store)

	col, report, err := in.CreateCollection(ctx, path, "")
	require.NoError(t, err)

	var texts []string
	for _, call := range emb.calls {
		texts = append(texts, call...)
	}
	assert.Equal(t, []string{"Rule A", "Rule B", "Rule C"}, texts)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t,
		[]string{"rules.pdf_page0_chunk0", "rules.pdf_page0_chunk1", "rules.pdf_page1_chunk0"},
		allIDs(t, col))

	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 1, report.SkippedPages)
	assert.Zero(t, report.EmptyChunks)
}
