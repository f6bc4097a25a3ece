package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/developer-mesh/academic-helper/internal/observability"
	"github.com/developer-mesh/academic-helper/internal/seeder"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a dataset file into the source store",
	Long: `seed embeds every record of a JSON dataset and stores it. Titles that
are already stored are skipped, so running it again is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := globalConfig, globalLogger

		path := seedFile
		if path == "" {
			path = cfg.Seed.DatasetPath
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := seeder.LoadDataset(path)
		if err != nil {
			return err
		}

		metrics := observability.NewMetrics(prometheus.NewRegistry())
		c, err := buildCore(ctx, cfg, metrics, logger)
		if err != nil {
			return err
		}
		defer c.close()

		report, runErr := seeder.NewSeeder(c.provider, c.repo, metrics, logger).Seed(ctx, records)
		if report != nil {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		if runErr != nil {
			return runErr
		}
		if report.FailedCount() > 0 {
			return fmt.Errorf("%d of %d records failed", report.FailedCount(), report.Total)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "dataset path (defaults to seed.dataset_path)")
}
