package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/productingest/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/productingest.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new productingest configuration file",
		Long: `Initialize creates a new .productingest configuration file in the current directory.

The generated file lists every option with its default value, plus commented
examples for API credentials and a PostgreSQL store.

Examples:
  # Create .productingest in current directory
  productingest init

  # Create config file at a specific path
  productingest init -o ~/.config/productingest/config.yaml

  # Force overwrite existing file
  productingest init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/productingest.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Credentials may end up in this file, so it is readable by the owner only.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - Default queries and acquisition strategy")
	fmt.Fprintln(out, "  - Pagination, retry and delay limits")
	fmt.Fprintln(out, "  - API cookies and headers")
	fmt.Fprintln(out, "  - The record store (sqlite or postgres)")

	return nil
}
