package main

import (
	"fmt"

	"github.com/nao1215/productingest/internal/config"
	"github.com/nao1215/productingest/internal/report"
	"github.com/spf13/cobra"
)

// defaultRecentRuns is the number of runs listed by stats.
const defaultRecentRuns = 10

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stored product counts and recent runs",
		Long: `Stats summarizes the record store: the number of stored products grouped by
source, category and availability, and the most recent ingest runs.

Examples:
  # Show statistics of the default SQLite store
  productingest stats

  # List the last 20 runs as JSON
  productingest stats --runs 20 --json`,
		Args: cobra.NoArgs,
		RunE: runStatsCmd,
	}

	addStoreFlags(cmd)
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .productingest in current or home directory)")
	cmd.Flags().IntP("runs", "n", defaultRecentRuns,
		"Number of recent runs to list")
	addReportFlags(cmd)

	return cmd
}

// runStatsCmd executes the stats command.
func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateStoreConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	runs, err := cmd.Flags().GetInt("runs")
	if err != nil {
		return err
	}
	if runs <= 0 {
		return fmt.Errorf("invalid --runs %d: must be positive", runs)
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	recent, err := store.ListRuns(ctx, runs)
	if err != nil {
		return err
	}

	return outputReport(cfg, cmd.OutOrStdout(), func(w report.Writer) error {
		_, err := w.WriteStats(stats, recent)
		return err
	})
}

// validateStoreConfig checks the subset of the configuration stats relies on.
func validateStoreConfig(cfg *config.Config) error {
	switch cfg.Store {
	case config.StoreSQLite:
	case config.StorePostgres:
		if cfg.PostgresDSN == "" {
			return config.ErrMissingPostgresDSN
		}
	default:
		return config.ErrInvalidStore
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	return nil
}
