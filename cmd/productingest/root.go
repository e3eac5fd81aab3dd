package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for productingest.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "productingest",
		Short: "Ingest product listings from Flipkart search results",
		Long: `productingest fetches Flipkart search result pages, extracts the product
listings embedded in them, normalizes each listing into a canonical record
and stores records that have not been seen before.

Two acquisition strategies are available: the rendered search page (html)
and the private page-fetch API (api). Records are stored in a local SQLite
database by default, or in PostgreSQL.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
