// Package ingest loads a PDF into a vector collection, one embedded chunk per
// paragraph.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/gloombot/internal/graph"
	"github.com/efebarandurmaz/gloombot/internal/metrics"
	"github.com/efebarandurmaz/gloombot/internal/observability"
	"github.com/efebarandurmaz/gloombot/internal/pdf"
	"github.com/efebarandurmaz/gloombot/internal/vector"
)

// Ingester builds collections from PDF files.
type Ingester struct {
	extractor pdf.Extractor
	embedder  vector.Embedder
	store     *vector.Store
	lineage   graph.Repository
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLineage records a Document -> Chunk edge for every stored chunk.
func WithLineage(repo graph.Repository) Option {
	return func(in *Ingester) { in.lineage = repo }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(in *Ingester) { in.logger = l }
}

// WithMetrics counts stored chunks on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(in *Ingester) { in.metrics = m }
}

// New creates an Ingester that embeds chunks with embedder and stores them in store.
func New(extractor pdf.Extractor, embedder vector.Embedder, store *vector.Store, opts ...Option) *Ingester {
	in := &Ingester{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// CreateCollection extracts path page by page, splits each page into
// paragraphs, embeds every paragraph on its own and upserts it into the
// collection called collectionName (DefaultCollection when empty).
//
// The first error aborts the run. Chunks already upserted stay in the store.
// The report is returned in every case.
func (in *Ingester) CreateCollection(ctx context.Context, path, collectionName string) (*vector.Collection, *metrics.IngestReport, error) {
	if collectionName == "" {
		collectionName = DefaultCollection
	}
	report := metrics.New(path, collectionName)
	report.Lineage = in.lineage != nil

	ctx, span := observability.StartIngestSpan(ctx, path, collectionName)
	defer span.End()

	col, err := in.run(ctx, path, collectionName, report)
	stored := 0
	if col != nil {
		if n, cerr := col.Count(ctx); cerr == nil {
			stored = n
		}
	}
	report.Finish(stored, err)
	in.metrics.RecordChunks(collectionName, report.Chunks)
	observability.RecordIngestResult(span, report.Pages, report.SkippedPages, report.Chunks)
	if err != nil {
		observability.RecordError(span, err)
		return nil, report, err
	}
	return col, report, nil
}

func (in *Ingester) run(ctx context.Context, path, collectionName string, report *metrics.IngestReport) (*vector.Collection, error) {
	pages, err := in.extractor.Pages(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	for _, text := range pages {
		report.AddPage(text)
	}

	chunks := Chunks(path, pages)
	in.logger.Info("loaded documents", "source", path, "pages", len(pages), "chunks", len(chunks))

	col, err := in.store.GetOrCreateCollection(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	for _, c := range chunks {
		if err := in.storeChunk(ctx, col, c); err != nil {
			return col, err
		}
		report.AddChunk(c.Text)
	}

	in.logger.Info("documents added to the collection", "collection", collectionName, "chunks", len(chunks))
	return col, nil
}

func (in *Ingester) storeChunk(ctx context.Context, col *vector.Collection, c Chunk) error {
	emb, err := vector.EmbedOne(ctx, in.embedder, c.Text)
	if err != nil {
		return fmt.Errorf("embed %s: %w", c.ID, err)
	}

	err = col.Upsert(ctx, []string{c.ID}, [][]float32{emb}, []string{c.Text}, []map[string]any{c.Metadata()})
	if err != nil {
		return fmt.Errorf("store %s: %w", c.ID, err)
	}

	if in.lineage != nil {
		ref := graph.ChunkRef{ID: c.ID, Source: c.Source, Page: c.Page, Collection: col.Name()}
		if err := in.lineage.RecordChunk(ctx, ref); err != nil {
			return fmt.Errorf("lineage %s: %w", c.ID, err)
		}
	}

	in.logger.Debug("chunk stored", "id", c.ID, "page", c.Page, "bytes", len(c.Text))
	return nil
}
