// Package query answers a question from the nearest stored passages and a
// chat-completion model.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/gloombot/internal/ingest"
	"github.com/efebarandurmaz/gloombot/internal/llm"
	"github.com/efebarandurmaz/gloombot/internal/observability"
	"github.com/efebarandurmaz/gloombot/internal/vector"
)

const (
	// DefaultTopK is how many passages are retrieved per question.
	DefaultTopK = 4

	// DefaultSystemPrompt sets the assistant persona.
	DefaultSystemPrompt = "You are a helpful assistant that provides concise answers related to the game Gloomhaven based on provided context."

	// FallbackAnswer is returned whenever the completion call fails.
	FallbackAnswer = "I have no answer for this. Please ask something related to Gloomhaven."
)

// Config tunes a Pipeline. Zero values take the defaults above.
type Config struct {
	Collection   string
	TopK         int
	SystemPrompt string
	Temperature  float64
	Model        string // reported on traces
}

func (c Config) withDefaults() Config {
	if c.Collection == "" {
		c.Collection = ingest.DefaultCollection
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	return c
}

// Pipeline answers questions against one collection.
type Pipeline struct {
	store    *vector.Store
	provider llm.Provider
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Pipeline. A nil logger falls back to slog.Default().
func New(store *vector.Store, provider llm.Provider, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, provider: provider, cfg: cfg.withDefaults(), logger: logger}
}

// WithMetrics records retrieval and completion outcomes on m.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Answer retrieves the passages nearest to input and asks the model to answer
// from them.
//
// A missing collection or a failed retrieval is returned as an error. A failed
// completion is logged with its classification and turned into FallbackAnswer
// with a nil error.
func (p *Pipeline) Answer(ctx context.Context, input string) (string, error) {
	col, err := p.store.GetCollection(ctx, p.cfg.Collection)
	if err != nil {
		return "", fmt.Errorf("query: %w", err)
	}

	res, err := col.Query(ctx, []string{input}, p.cfg.TopK)
	if err != nil {
		return "", fmt.Errorf("query: %w", err)
	}
	snippets := Flatten(res)
	p.metrics.RecordPassages(len(snippets))

	answer, err := p.complete(ctx, BuildPrompt(input, snippets))
	if err != nil {
		kind := llm.Classify(err)
		p.metrics.RecordCompletionError(string(kind))
		p.logger.Error("completion failed",
			"error", err,
			"kind", kind,
			"collection", p.cfg.Collection,
			"snippets", len(snippets),
		)
		return FallbackAnswer, nil
	}
	return answer, nil
}

func (p *Pipeline) complete(ctx context.Context, userPrompt string) (string, error) {
	if p.provider == nil {
		return "", fmt.Errorf("no completion provider configured: %w", llm.ErrEmptyResponse)
	}

	ctx, span := observability.StartLLMSpan(ctx, p.provider.Name(), p.cfg.Model)
	defer span.End()

	start := time.Now()
	resp, err := p.provider.Complete(ctx, llm.NewPrompt(p.cfg.SystemPrompt, userPrompt), llm.WithTemperature(p.cfg.Temperature))
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(start))
	return resp.Content, nil
}
