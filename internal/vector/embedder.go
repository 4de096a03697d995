package vector

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/gloombot/internal/observability"
)

// Embedder turns texts into vectors. llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// EmbedTexts embeds texts and checks that one vector came back per text.
func EmbedTexts(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, e.Name(), len(texts))
	defer span.End()

	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(texts) {
		err := fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
		observability.RecordError(span, err)
		return nil, err
	}
	return vectors, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := EmbedTexts(ctx, e, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
