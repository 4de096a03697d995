// Package graph records which chunks were ingested from which source document.
package graph

import "context"

// ChunkRef links one stored chunk to the document it came from.
type ChunkRef struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	Collection string `json:"collection"`
}

// Repository provides lineage storage for ingested chunks.
type Repository interface {
	// RecordChunk persists a Document -> Chunk edge. Recording the same chunk
	// again updates it in place.
	RecordChunk(ctx context.Context, ref ChunkRef) error
	// ChunksForSource returns every chunk recorded for source.
	ChunksForSource(ctx context.Context, source string) ([]ChunkRef, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
