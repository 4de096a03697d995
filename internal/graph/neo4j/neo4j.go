package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/gloombot/internal/graph"
)

const (
	recordChunkCypher = "MERGE (d:Document {source: $source}) " +
		"MERGE (c:Chunk {id: $id, collection: $collection}) " +
		"SET c.page = $page " +
		"MERGE (d)-[:HAS_CHUNK]->(c)"

	chunksForSourceCypher = "MATCH (d:Document {source: $source})-[:HAS_CHUNK]->(c:Chunk) " +
		"RETURN c.id, c.page, c.collection ORDER BY c.collection, c.page, c.id"
)

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a Neo4j-backed repository and verifies connectivity.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

func (r *Neo4jRepository) RecordChunk(ctx context.Context, ref graph.ChunkRef) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, recordChunkCypher, chunkParams(ref))
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("record chunk %s: %w", ref.ID, err)
	}
	return nil
}

func (r *Neo4jRepository) ChunksForSource(ctx context.Context, source string) ([]graph.ChunkRef, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, chunksForSourceCypher, map[string]any{"source": source})
		if err != nil {
			return nil, err
		}
		var refs []graph.ChunkRef
		for records.Next(ctx) {
			refs = append(refs, refFromRecord(records.Record(), source))
		}
		return refs, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("chunks for %s: %w", source, err)
	}
	return result.([]graph.ChunkRef), nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func chunkParams(ref graph.ChunkRef) map[string]any {
	return map[string]any{
		"source":     ref.Source,
		"id":         ref.ID,
		"collection": ref.Collection,
		"page":       int64(ref.Page),
	}
}

func refFromRecord(rec *neo4j.Record, source string) graph.ChunkRef {
	ref := graph.ChunkRef{Source: source}
	if v, ok := rec.Get("c.id"); ok {
		ref.ID, _ = v.(string)
	}
	if v, ok := rec.Get("c.page"); ok {
		if page, ok := v.(int64); ok {
			ref.Page = int(page)
		}
	}
	if v, ok := rec.Get("c.collection"); ok {
		ref.Collection, _ = v.(string)
	}
	return ref
}

var _ graph.Repository = (*Neo4jRepository)(nil)
