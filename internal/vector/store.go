// Package vector holds named collections of embedded documents and answers
// nearest-neighbour queries against them.
package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/gloombot/internal/observability"
)

// QueryResult holds one row per query text. Row i of every field belongs to
// query text i, ordered closest first.
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]any
	Distances [][]float32
}

// Store hands out collections backed by a Backend. Every collection embeds
// query texts with the store's query embedder.
type Store struct {
	backend  Backend
	embedder Embedder
	logger   *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default().
func NewStore(backend Backend, queryEmbedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, embedder: queryEmbedder, logger: logger}
}

// GetOrCreateCollection returns the collection called name, creating it when absent.
func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	idx, err := s.backend.Open(ctx, name, true)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", name, err)
	}
	return &Collection{name: name, index: idx, embedder: s.embedder}, nil
}

// GetCollection returns the existing collection called name. The error wraps
// ErrCollectionNotFound when it does not exist.
func (s *Store) GetCollection(ctx context.Context, name string) (*Collection, error) {
	idx, err := s.backend.Open(ctx, name, false)
	if err != nil {
		return nil, fmt.Errorf("get collection %q: %w", name, err)
	}
	return &Collection{name: name, index: idx, embedder: s.embedder}, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	s.logger.Debug("closing vector store")
	return s.backend.Close()
}

// Collection is a named set of (id, document, embedding, metadata) entries.
type Collection struct {
	name     string
	index    Index
	embedder Embedder
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Upsert stores entries, overwriting existing ids. All slices must have the
// same length; metadatas may be nil.
func (c *Collection) Upsert(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []map[string]any) error {
	if len(embeddings) != len(ids) || len(documents) != len(ids) {
		return fmt.Errorf("upsert %s: got %d ids, %d embeddings, %d documents", c.name, len(ids), len(embeddings), len(documents))
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return fmt.Errorf("upsert %s: got %d ids, %d metadatas", c.name, len(ids), len(metadatas))
	}

	records := make([]Record, len(ids))
	for i := range ids {
		records[i] = Record{
			ID:        ids[i],
			Document:  documents[i],
			Embedding: embeddings[i],
		}
		if metadatas != nil {
			records[i].Metadata = metadatas[i]
		}
	}
	if err := c.index.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert %s: %w", c.name, err)
	}
	return nil
}

// Query embeds each text with the collection's query embedder and returns
// its n nearest entries.
func (c *Collection) Query(ctx context.Context, texts []string, n int) (*QueryResult, error) {
	ctx, span := observability.StartVectorQuerySpan(ctx, c.name, n)
	defer span.End()

	if c.embedder == nil {
		err := fmt.Errorf("query %s: no query embedder configured", c.name)
		observability.RecordError(span, err)
		return nil, err
	}

	vectors, err := EmbedTexts(ctx, c.embedder, texts)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}

	res := &QueryResult{
		IDs:       make([][]string, len(texts)),
		Documents: make([][]string, len(texts)),
		Metadatas: make([][]map[string]any, len(texts)),
		Distances: make([][]float32, len(texts)),
	}
	for i, vec := range vectors {
		matches, err := c.index.Search(ctx, vec, n)
		if err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("query %s: %w", c.name, err)
		}
		for _, m := range matches {
			res.IDs[i] = append(res.IDs[i], m.ID)
			res.Documents[i] = append(res.Documents[i], m.Document)
			res.Metadatas[i] = append(res.Metadatas[i], m.Metadata)
			res.Distances[i] = append(res.Distances[i], m.Distance)
		}
	}
	return res, nil
}

// Count returns the number of entries in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.index.Count(ctx)
}
