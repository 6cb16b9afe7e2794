package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
)

var initSchemaCmd = &cobra.Command{
	Use:   "init-schema",
	Short: "Create graph indexes and the vector index",
	Long: `Create the property indexes and the vector index in FalkorDB. The
vector index dimension follows the configured embedding model, so run
this again after switching models.`,
	Run: runInitSchema,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-graph node counts",
	Run:   runStats,
}

func runInitSchema(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	HandleError(err, "Failed to load configuration")

	logger := logging.GetLogger("init-schema")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := graph.NewClient(cfg.GraphClientConfig())
	HandleError(client.Connect(ctx), "Failed to connect to FalkorDB")
	defer client.Close()

	dimension := cfg.EmbeddingDimensions()
	logger.Info("Initializing schema on graph %q (vector dimension: %d)", cfg.Store.GraphName, dimension)
	HandleError(client.InitializeSchema(ctx, dimension), "Failed to initialize schema")
	logger.Info("Schema initialized")
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	HandleError(err, "Failed to load configuration")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := graph.NewClient(cfg.GraphClientConfig())
	HandleError(client.Connect(ctx), "Failed to connect to FalkorDB")
	defer client.Close()

	stats, err := client.GetStatistics(ctx)
	HandleError(err, "Failed to fetch statistics")

	fmt.Printf("Graph: %s\n", cfg.Store.GraphName)
	fmt.Printf("  semantic concepts:  %d\n", stats.SemanticNodes)
	fmt.Printf("  entities:           %d\n", stats.EntityNodes)
	fmt.Printf("  temporal nodes:     %d\n", stats.TemporalNodes)
	fmt.Printf("  causal nodes:       %d\n", stats.CausalNodes)
	fmt.Printf("  relationships:      %d\n", stats.TotalRelationships)
}
