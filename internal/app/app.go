// Package app wires configuration into the objects the gloombot commands run
// with. Nothing here is global: cmd/gloombot builds one Deps and passes it on.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/gloombot/internal/config"
	"github.com/efebarandurmaz/gloombot/internal/graph"
	"github.com/efebarandurmaz/gloombot/internal/graph/neo4j"
	"github.com/efebarandurmaz/gloombot/internal/ingest"
	"github.com/efebarandurmaz/gloombot/internal/llm"
	"github.com/efebarandurmaz/gloombot/internal/llm/openai"
	"github.com/efebarandurmaz/gloombot/internal/observability"
	"github.com/efebarandurmaz/gloombot/internal/pdf"
	"github.com/efebarandurmaz/gloombot/internal/query"
	"github.com/efebarandurmaz/gloombot/internal/vector"
	"github.com/efebarandurmaz/gloombot/internal/vector/memory"
	"github.com/efebarandurmaz/gloombot/internal/vector/qdrant"
	"github.com/efebarandurmaz/gloombot/internal/vector/sqlite"
)

// Version is reported by the health endpoints and traces.
const Version = "0.1.0"

// Deps holds everything a command needs.
type Deps struct {
	Config        *config.Config
	Logger        *slog.Logger
	Factory       *llm.ProviderFactory
	LLM           llm.Provider // nil when llm.provider is "none"
	Embedder      llm.Provider // embeds chunks at ingestion
	QueryEmbedder llm.Provider // embeds questions; Embedder unless vector.query_embedding differs
	Extractor     pdf.Extractor
	Store         *vector.Store
	Tracer        *observability.TracerProvider
	Metrics       *observability.Metrics

	lineageOnce sync.Once
	lineage     graph.Repository
	lineageErr  error
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Build creates the providers, the vector store and the tracer. The lineage
// graph is connected lazily by Lineage.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "gloombot",
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	factory := llm.NewFactory()
	openai.Register(factory)

	completion, err := factory.Create(llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	ingestEmb := cfg.Embedding
	embedder, err := newEmbedder(factory, cfg, ingestEmb)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	queryEmb := cfg.QueryEmbeddingResolved()
	queryEmbedder := embedder
	if queryEmb != ingestEmb {
		if queryEmbedder, err = newEmbedder(factory, cfg, queryEmb); err != nil {
			_ = tracer.Shutdown(ctx)
			return nil, fmt.Errorf("query embedding provider: %w", err)
		}
	}
	if queryEmb.Provider != ingestEmb.Provider || queryEmb.Model != ingestEmb.Model {
		logger.Warn("query embedding model differs from ingestion model; distances may be meaningless",
			"ingest_provider", ingestEmb.Provider, "ingest_model", ingestEmb.Model,
			"query_provider", queryEmb.Provider, "query_model", queryEmb.Model)
	}

	backend, err := OpenBackend(cfg.Vector)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	logger.Debug("dependencies built",
		"llm", cfg.LLM.Provider, "model", cfg.LLM.Model,
		"embedding", ingestEmb.Provider+"/"+ingestEmb.Model,
		"backend", backendName(cfg.Vector.Backend))

	return &Deps{
		Config:        cfg,
		Logger:        logger,
		Factory:       factory,
		LLM:           completion,
		Embedder:      embedder,
		QueryEmbedder: queryEmbedder,
		Extractor:     pdf.NewReader(),
		Store:         vector.NewStore(backend, queryEmbedder, logger),
		Tracer:        tracer,
		Metrics:       observability.NewMetrics(),
	}, nil
}

func newEmbedder(factory *llm.ProviderFactory, cfg *config.Config, emb config.EmbeddingConfig) (llm.Provider, error) {
	apiKey := emb.APIKey
	if apiKey == "" && emb.Provider == cfg.LLM.Provider {
		apiKey = cfg.LLM.APIKey
	}
	p, err := factory.Create(llm.ProviderConfig{
		Provider:   emb.Provider,
		APIKey:     apiKey,
		Model:      emb.Model,
		EmbedModel: emb.Model,
		BaseURL:    emb.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("an embedding provider is required")
	}
	return p, nil
}

func backendName(name string) string {
	if name == "" {
		return config.BackendLocal
	}
	return name
}

// OpenBackend opens the collection store selected by cfg.Backend.
func OpenBackend(cfg config.VectorConfig) (vector.Backend, error) {
	switch backendName(cfg.Backend) {
	case config.BackendLocal:
		b, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("local vector store: %w", err)
		}
		return b, nil
	case config.BackendQdrant:
		b, err := qdrant.New(qdrant.Config{
			Host:      cfg.Qdrant.Host,
			Port:      cfg.Qdrant.Port,
			APIKey:    cfg.Qdrant.APIKey,
			UseTLS:    cfg.Qdrant.UseTLS,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

// Lineage connects to the Neo4j lineage graph on first use. It returns nil
// without error when graph.uri is not configured.
func (d *Deps) Lineage(ctx context.Context) (graph.Repository, error) {
	d.lineageOnce.Do(func() {
		g := d.Config.Graph
		if g.URI == "" {
			return
		}
		repo, err := neo4j.NewNeo4j(ctx, g.URI, g.Username, g.Password)
		if err != nil {
			d.lineageErr = fmt.Errorf("lineage graph: %w", err)
			return
		}
		d.lineage = repo
	})
	return d.lineage, d.lineageErr
}

// Ingester returns an Ingester over the configured store, recording lineage
// when a graph is configured.
func (d *Deps) Ingester(ctx context.Context) (*ingest.Ingester, error) {
	opts := []ingest.Option{ingest.WithLogger(d.Logger), ingest.WithMetrics(d.Metrics)}
	repo, err := d.Lineage(ctx)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		opts = append(opts, ingest.WithLineage(repo))
	}
	return ingest.New(d.Extractor, d.Embedder, d.Store, opts...), nil
}

// QueryPipeline returns the question-answering pipeline.
func (d *Deps) QueryPipeline() *query.Pipeline {
	return query.New(d.Store, d.LLM, query.Config{
		Collection:   d.Config.Vector.Collection,
		TopK:         d.Config.Vector.TopK,
		SystemPrompt: d.Config.LLM.SystemPrompt,
		Temperature:  d.Config.LLM.Temperature,
		Model:        d.Config.LLM.Model,
	}, d.Logger).WithMetrics(d.Metrics)
}

// DialTemporal connects to the configured Temporal frontend.
func (d *Deps) DialTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  d.Config.Temporal.Host,
		Namespace: d.Config.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(d.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial %s: %w", d.Config.Temporal.Host, err)
	}
	return c, nil
}

// CheckEmbedding embeds a short text with the query embedder. Every question
// goes through it before retrieval.
func (d *Deps) CheckEmbedding(ctx context.Context) error {
	if d.QueryEmbedder == nil {
		return errors.New("no query embedder configured")
	}
	_, err := vector.EmbedOne(ctx, d.QueryEmbedder, "health")
	return err
}

// CheckCollection reports whether the configured collection exists.
func (d *Deps) CheckCollection(ctx context.Context) error {
	_, err := d.Store.GetCollection(ctx, d.collection())
	return err
}

func (d *Deps) collection() string {
	if d.Config.Vector.Collection == "" {
		return ingest.DefaultCollection
	}
	return d.Config.Vector.Collection
}

// Close releases the lineage driver, the vector store and the tracer.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.lineage != nil {
		if err := d.lineage.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("lineage: %w", err))
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("vector store: %w", err))
		}
	}
	if d.Tracer != nil {
		if err := d.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
