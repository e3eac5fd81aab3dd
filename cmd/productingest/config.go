package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nao1215/productingest/internal/config"
	"github.com/nao1215/productingest/internal/log"
	"github.com/spf13/cobra"
)

// loadConfig builds a Config from defaults, the config file and the flags
// set on cmd, in increasing order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = configPath

	// An explicitly named file must exist; the search locations are optional.
	path := config.FindConfigFile(configPath)
	switch {
	case path != "":
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		file.Apply(cfg)
	case configPath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every flag the user set into cfg.
// Flags that are not defined on cmd are ignored.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	var errs []error
	str := func(name string, dst *string) {
		if changed(name) {
			v, err := flags.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if changed(name) {
			v, err := flags.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	duration := func(name string, dst *time.Duration) {
		if changed(name) {
			v, err := flags.GetDuration(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if changed(name) {
			v, err := flags.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("strategy", &cfg.Strategy)
	integer("pages", &cfg.MaxPages)
	if changed("no-pagination") {
		v, err := flags.GetBool("no-pagination")
		errs = append(errs, err)
		cfg.Pagination = !v
	}
	duration("page-delay", &cfg.PageDelay)
	integer("retry-attempts", &cfg.RetryAttempts)
	duration("retry-delay", &cfg.RetryDelay)
	duration("timeout", &cfg.Timeout)
	duration("run-timeout", &cfg.RunTimeout)
	boolean("fail-fast", &cfg.FailFast)
	str("dedup-scope", &cfg.DedupScope)
	str("store", &cfg.Store)
	str("postgres-dsn", &cfg.PostgresDSN)
	str("db-dir", &cfg.DBDir)
	str("proxy", &cfg.ProxyAddress)
	if changed("rate") {
		v, err := flags.GetFloat64("rate")
		errs = append(errs, err)
		cfg.RequestRate = v
	}
	integer("batch", &cfg.BatchSize)
	boolean("harvest-cookies", &cfg.HarvestCookies)
	boolean("json", &cfg.JSONReport)
	boolean("markdown", &cfg.MarkdownReport)
	str("output", &cfg.ReportFile)
	boolean("tee", &cfg.TeeReport)

	cfg.Verbose = persistentBool(cmd, "verbose")
	cfg.LogJSON = persistentBool(cmd, "log-json")

	return errors.Join(errs...)
}

// persistentBool reads a boolean flag from the command or the root command.
func persistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// newLogger creates the secure logger selected by cfg.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}
