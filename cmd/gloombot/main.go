package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/gloombot/internal/app"
	"github.com/efebarandurmaz/gloombot/internal/bot"
	"github.com/efebarandurmaz/gloombot/internal/config"
	"github.com/efebarandurmaz/gloombot/internal/llm"
	"github.com/efebarandurmaz/gloombot/internal/metrics"
	"github.com/efebarandurmaz/gloombot/internal/server"
	"github.com/efebarandurmaz/gloombot/internal/temporal"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "gloombot",
		Short:         "Gloomhaven rules assistant for Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path")

	var (
		filePath     string
		collection   string
		jsonReport   bool
		viaTemporal  bool
		lineageInput string
	)

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a PDF into the vector collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, filePath, collection, jsonReport, viaTemporal)
		},
	}
	ingestCmd.Flags().StringVar(&filePath, "file", "", "PDF to ingest")
	ingestCmd.Flags().StringVar(&collection, "collection", "", "Collection name (default from config)")
	ingestCmd.Flags().BoolVar(&jsonReport, "json", false, "Output the ingestion report as JSON")
	ingestCmd.Flags().BoolVar(&viaTemporal, "temporal", false, "Run ingestion as a Temporal workflow and wait for it")
	_ = ingestCmd.MarkFlagRequired("file")

	queryCmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer one question from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(configPath, strings.Join(args, " "))
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and answer /bot commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker hosting the ingestion workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(configPath)
		},
	}

	lineageCmd := &cobra.Command{
		Use:   "lineage",
		Short: "List the chunks recorded for a source in the lineage graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(configPath, lineageInput)
		},
	}
	lineageCmd.Flags().StringVar(&lineageInput, "source", "", "Source path as given to ingest")
	_ = lineageCmd.MarkFlagRequired("source")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM and embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			printProviders()
		},
	}

	rootCmd.AddCommand(ingestCmd, queryCmd, serveCmd, workerCmd, lineageCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, installs the process logger and builds the
// dependencies every command shares.
func setup(ctx context.Context, configPath string) (*app.Deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := app.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	return app.Build(ctx, cfg, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runIngest(configPath, filePath, collection string, jsonReport, viaTemporal bool) error {
	ctx, stop := signalContext()
	defer stop()

	deps, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	if collection == "" {
		collection = deps.Config.Vector.Collection
	}

	var report *metrics.IngestReport
	if viaTemporal {
		input, err := temporal.NewIngestInput(filePath, collection)
		if err != nil {
			return err
		}

		c, err := deps.DialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		out, err := temporal.RunIngest(ctx, c, deps.Config.Temporal.TaskQueue, input)
		if err != nil {
			return err
		}
		report = &out.Report
	} else {
		ingester, err := deps.Ingester(ctx)
		if err != nil {
			return err
		}
		_, report, err = ingester.CreateCollection(ctx, filePath, collection)
		if err != nil {
			printReport(report, jsonReport)
			return err
		}
	}

	printReport(report, jsonReport)
	return nil
}

func printReport(report *metrics.IngestReport, asJSON bool) {
	if report == nil {
		return
	}
	if !asJSON {
		report.PrintSummary(os.Stdout)
		return
	}
	data, err := report.JSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: encoding report: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func runQuery(configPath, question string) error {
	ctx, stop := signalContext()
	defer stop()

	deps, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	answer, err := deps.QueryPipeline().Answer(ctx, question)
	if err != nil {
		return err
	}
	fmt.Println(bot.FormatReply(question, answer))
	return nil
}

func runServe(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	cfg := deps.Config
	logger := deps.Logger

	if cfg.Bot.Token == "" {
		_ = deps.Close(context.Background())
		return errors.New("bot token is empty: set bot.token, GLOOMBOT_DISCORD_TOKEN or DISCORD_BOT_TOKEN")
	}

	gs := server.NewGracefulServer(
		&server.HealthConfig{Version: app.Version},
		&server.ShutdownConfig{Logger: logger},
	)

	handler := bot.NewHandler(deps.QueryPipeline(), cfg.Bot.CommandTimeout, logger).WithMetrics(deps.Metrics)
	b, err := bot.New(bot.Config{Token: cfg.Bot.Token, GuildID: cfg.Bot.GuildID}, handler, func() {
		gs.Health.SetReady(true)
	}, logger)
	if err != nil {
		_ = deps.Close(context.Background())
		return err
	}

	gs.Health.RegisterCheck("vector", server.VectorStoreHealthChecker(cfg.Vector.Backend, cfg.Vector.Collection, deps.CheckCollection))
	gs.Health.RegisterCheck("embedding", server.EmbeddingHealthChecker(deps.QueryEmbedder.Name(), deps.CheckEmbedding))
	gs.Health.RegisterCheck("discord", server.GatewayHealthChecker(b.Connected))
	gs.Health.Handle("/metrics", deps.Metrics.Handler())

	gs.RegisterHook("discord", server.PriorityGateway, func(context.Context) error {
		cancel()
		return b.Close()
	})
	gs.RegisterHook("dependencies", server.PriorityStorage, deps.Close)

	gs.Start(cfg.Bot.HealthAddr)
	logger.Info("health endpoints listening", "addr", cfg.Bot.HealthAddr)

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	select {
	case err := <-runErr:
		if err != nil {
			gs.Shutdown.Shutdown()
			gs.Wait()
			return err
		}
	case <-gs.Shutdown.Done():
	}

	gs.Wait()
	logger.Info("gloombot stopped")
	return nil
}

func runWorker(configPath string) error {
	deps, err := setup(context.Background(), configPath)
	if err != nil {
		return err
	}
	cfg := deps.Config
	logger := deps.Logger

	ingester, err := deps.Ingester(context.Background())
	if err != nil {
		_ = deps.Close(context.Background())
		return err
	}

	c, err := deps.DialTemporal()
	if err != nil {
		_ = deps.Close(context.Background())
		return err
	}

	queue := cfg.Temporal.TaskQueue
	w, err := temporal.StartWorker(c, queue, &temporal.Activities{Ingester: ingester})
	if err != nil {
		c.Close()
		_ = deps.Close(context.Background())
		return err
	}

	gs := server.NewGracefulServer(
		&server.HealthConfig{Version: app.Version},
		&server.ShutdownConfig{Logger: logger},
	)
	gs.Health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	}))
	gs.Health.Handle("/metrics", deps.Metrics.Handler())

	gs.RegisterHook("temporal-worker", server.PriorityWorker, func(context.Context) error {
		w.Stop()
		c.Close()
		return nil
	})
	gs.RegisterHook("dependencies", server.PriorityStorage, deps.Close)

	gs.Start(cfg.Temporal.HealthAddr)
	gs.Health.SetReady(true)

	logger.Info("worker started", "task_queue", queue, "health_addr", cfg.Temporal.HealthAddr)
	gs.Wait()
	logger.Info("worker stopped")
	return nil
}

func runLineage(configPath, source string) error {
	ctx, stop := signalContext()
	defer stop()

	deps, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	repo, err := deps.Lineage(ctx)
	if err != nil {
		return err
	}
	if repo == nil {
		return errors.New("lineage graph is not configured: set graph.uri")
	}

	refs, err := repo.ChunksForSource(ctx, source)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Printf("No chunks recorded for %s\n", source)
		return nil
	}

	fmt.Printf("%d chunks recorded for %s:\n", len(refs), source)
	for _, ref := range refs {
		fmt.Printf("  %-40s page %-4d %s\n", ref.ID, ref.Page, ref.Collection)
	}
	return nil
}

func printProviders() {
	names := make([]string, 0, len(llm.KnownProviders))
	for name := range llm.KnownProviders {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available providers (completion and embedding):")
	fmt.Println()
	for _, name := range names {
		fmt.Printf("  %-14s %s\n", name, llm.KnownProviders[name])
	}
	fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
	fmt.Println("  none           (completion only: every question gets the fallback answer)")
	fmt.Println()
	fmt.Println("Configure in gloombot.yaml or via environment:")
	fmt.Println("  GLOOMBOT_LLM_PROVIDER=groq")
	fmt.Println("  GLOOMBOT_LLM_API_KEY=gsk_...")
	fmt.Println("  GLOOMBOT_EMBEDDING_PROVIDER=ollama")
	fmt.Println("  GLOOMBOT_EMBEDDING_MODEL=all-minilm")
}
