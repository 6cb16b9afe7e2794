package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/moolen/magma/internal/config"
	"github.com/moolen/magma/internal/embedding"
	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
	"github.com/moolen/magma/internal/magma"
	"github.com/moolen/magma/internal/mcp"
	httptransport "github.com/moolen/magma/internal/mcp/transport/http"
	stdiotransport "github.com/moolen/magma/internal/mcp/transport/stdio"
	"github.com/moolen/magma/internal/mcp/tools"
	"github.com/moolen/magma/internal/memory"
	"github.com/moolen/magma/internal/metrics"
	"github.com/moolen/magma/internal/tracing"
)

var (
	transportType string
	watchConfig   bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the MCP server",
	Long: `Start the MCP server that exposes the memory graphs as tools.

Supports two transport modes:
  - http: HTTP server mode with /health and /metrics endpoints (default)
  - stdio: standard input/output mode for subprocess-based MCP clients`,
	Run: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&transportType, "transport", "http", "Transport type: http or stdio")
	serverCmd.Flags().BoolVar(&watchConfig, "watch-config", false, "Reload the config file on change (log level applies without restart)")
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	HandleError(err, "Failed to load configuration")

	logger := logging.GetLogger("serve")
	logger.Info("Starting MAGMA MCP server %s (transport: %s)", Version, transportType)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal: %v, shutting down gracefully...", sig)
		cancel()
	}()

	tracer, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCAPath,
		TLSInsecure: cfg.Tracing.TLSInsecure,
	})
	HandleError(err, "Failed to initialize tracing")
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn("Tracing shutdown: %v", err)
		}
	}()

	client := graph.NewClient(cfg.GraphClientConfig())
	HandleError(client.Connect(ctx), "Failed to connect to FalkorDB")
	defer client.Close()

	provider, err := buildEmbeddingProvider(ctx, cfg)
	HandleError(err, "Failed to create embedding provider")
	logger.Info("Embedding provider ready (model: %s, dimensions: %d)", provider.ModelID(), provider.Dimensions())

	deps := buildDependencies(cfg, client, provider)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	server := mcp.NewServer(Version, deps, m)
	sessions := mcp.NewSessionManager(mcp.SessionConfig{
		Timeout:         cfg.SessionTimeout(),
		CleanupInterval: cfg.SessionCleanupInterval(),
		MaxSessions:     cfg.HTTP.MaxSessions,
	})
	sessions.OnCount = m.SetActiveSessions

	if watchConfig && configPath != "" {
		startConfigWatcher(ctx, logger)
	}

	switch transportType {
	case "http":
		transport := httptransport.NewTransport(httptransport.Config{
			Addr:     cfg.ListenAddr(),
			Registry: registry,
		}, server, sessions, client)

		logger.Info("Listening on %s", cfg.ListenAddr())
		if err := transport.Start(ctx); err != nil {
			logger.Error("HTTP transport error: %v", err)
			os.Exit(1)
		}
		if err := transport.Stop(); err != nil {
			logger.Error("Error during shutdown: %v", err)
		}

	case "stdio":
		logger.Info("Starting stdio transport")
		if err := stdiotransport.NewTransport(server).Start(ctx); err != nil {
			logger.Error("Stdio transport error: %v", err)
		}

	default:
		logger.Fatal("Invalid transport type: %s (must be 'http' or 'stdio')", transportType)
	}

	logger.Info("Server stopped")
}

// buildEmbeddingProvider constructs the configured embedding backend.
func buildEmbeddingProvider(ctx context.Context, cfg *config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "genai":
		return embedding.NewGenAIProvider(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model, "")
	default:
		return embedding.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.Model)
	}
}

// buildDependencies wires the graph facades and pipeline components the
// tools operate on. Without an Anthropic key the classifier falls back
// to keyword heuristics and synthesis is unavailable.
func buildDependencies(cfg *config.Config, client graph.Client, provider embedding.Provider) tools.Dependencies {
	var classifier magma.Classifier
	var synthesizer magma.Synthesizer
	if cfg.LLM.APIKey != "" {
		classifier = magma.NewAnthropicClassifier(cfg.LLM.APIKey, cfg.LLM.ClassifierModel, cfg.LLM.ClassifierMaxTokens)
		synthesizer = magma.NewAnthropicSynthesizer(cfg.LLM.APIKey, cfg.LLM.SynthesizerModel, cfg.LLM.SynthesizerMaxTokens)
	} else {
		classifier = magma.NewKeywordClassifier()
	}

	return tools.Dependencies{
		Graph:       client,
		Semantic:    memory.NewSemanticGraph(client, provider),
		Entities:    memory.NewEntityGraph(client),
		Temporal:    memory.NewTemporalGraph(client),
		Causal:      memory.NewCausalGraph(client),
		Links:       memory.NewCrossLinker(client),
		Classifier:  classifier,
		Synthesizer: synthesizer,
		Executor:    cfg.ExecutorConfig(),
	}
}

// startConfigWatcher reloads the config file on change. Only the log
// level can change at runtime; connection settings need a restart.
func startConfigWatcher(ctx context.Context, logger *logging.Logger) {
	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		if err := logging.SetLevel(cfg.LogLevel); err != nil {
			logger.Warn("Ignoring invalid log level %q from config reload: %v", cfg.LogLevel, err)
		}
	})
	if err != nil {
		logger.Warn("Config watcher disabled: %v", err)
		return
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config watcher failed to start: %v", err)
	}
}
