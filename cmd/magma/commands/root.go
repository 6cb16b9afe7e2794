package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moolen/magma/internal/config"
	"github.com/moolen/magma/internal/logging"
)

const Version = "0.1.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "magma",
	Short: "MAGMA - Multi-graph memory retrieval engine",
	Long: `MAGMA stores memories across four coordinated graph scopes (semantic,
entity, temporal, causal) in FalkorDB and retrieves them through an
intent-aware pipeline. The server exposes the memory as MCP tools.`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(initSchemaCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig loads the config file and applies CLI overrides, then
// initializes logging so every later component logs at the right level.
// A missing config file is created with defaults first.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Creating default config file: %s\n", configPath)
			if err := config.WriteDefault(configPath); err != nil {
				return nil, err
			}
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}
