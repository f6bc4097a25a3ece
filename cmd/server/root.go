package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/developer-mesh/academic-helper/internal/config"
	"github.com/developer-mesh/academic-helper/internal/observability"
)

var (
	configPath   string
	globalConfig *config.Config
	globalLogger observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "academic-helper",
	Short: "Similarity search over academic sources",
	Long: `academic-helper stores academic sources with their text embeddings in
PostgreSQL (pgvector) and answers natural-language queries with the closest
sources. Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		globalConfig = cfg
		globalLogger = observability.NewStandardLogger("academic-helper").
			WithLevel(observability.ParseLogLevel(cfg.Service.LogLevel))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, seedCmd, tokenCmd, versionCmd)
}
