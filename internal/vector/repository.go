package vector

import (
	"context"
	"errors"
)

var (
	// ErrCollectionNotFound is returned when a named collection does not exist.
	ErrCollectionNotFound = errors.New("vector: collection not found")
	// ErrDimensionMismatch is returned when an embedding's length differs from
	// the dimension the collection was created with.
	ErrDimensionMismatch = errors.New("vector: embedding dimension mismatch")
)

// Record is one stored entry of a collection.
type Record struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  map[string]any
}

// Match is a single hit from a similarity search. Distance is cosine
// distance, lower is closer.
type Match struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float32
}

// Index is the storage behind one collection.
type Index interface {
	// Upsert inserts records or overwrites the ones whose id already exists.
	Upsert(ctx context.Context, records []Record) error
	// Search returns up to topK records nearest to vector, closest first.
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Backend opens per-collection indexes.
type Backend interface {
	// Open returns the index for name. When create is false and the collection
	// does not exist, Open returns ErrCollectionNotFound.
	Open(ctx context.Context, name string, create bool) (Index, error)
	// Close releases resources.
	Close() error
}
