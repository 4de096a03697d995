// Package memory is an in-process vector.Backend. Contents are lost on exit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/efebarandurmaz/gloombot/internal/vector"
)

// Backend keeps every collection in memory.
type Backend struct {
	mu          sync.Mutex
	collections map[string]*Index
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{collections: make(map[string]*Index)}
}

func (b *Backend) Open(_ context.Context, name string, create bool) (vector.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.collections[name]
	if ok {
		return idx, nil
	}
	if !create {
		return nil, vector.ErrCollectionNotFound
	}
	idx = &Index{pos: make(map[string]int)}
	b.collections[name] = idx
	return idx, nil
}

func (b *Backend) Close() error { return nil }

// Index is one in-memory collection. Records keep their first insertion
// position when overwritten.
type Index struct {
	mu        sync.RWMutex
	dimension int
	records   []vector.Record
	pos       map[string]int
}

func (i *Index) Upsert(_ context.Context, records []vector.Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, r := range records {
		if i.dimension == 0 {
			i.dimension = len(r.Embedding)
		}
		if len(r.Embedding) != i.dimension {
			return fmt.Errorf("%w: record %s has %d, collection has %d", vector.ErrDimensionMismatch, r.ID, len(r.Embedding), i.dimension)
		}
		r.Embedding = append([]float32(nil), r.Embedding...)
		if p, ok := i.pos[r.ID]; ok {
			i.records[p] = r
			continue
		}
		i.pos[r.ID] = len(i.records)
		i.records = append(i.records, r)
	}
	return nil
}

func (i *Index) Search(_ context.Context, query []float32, topK int) ([]vector.Match, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return vector.Nearest(i.records, query, topK)
}

func (i *Index) Count(_ context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.records), nil
}

var _ vector.Backend = (*Backend)(nil)
