package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nao1215/productingest/internal/config"
	"github.com/nao1215/productingest/internal/credentials"
	"github.com/nao1215/productingest/internal/database"
	"github.com/nao1215/productingest/internal/extract"
	"github.com/nao1215/productingest/internal/fetch"
	"github.com/nao1215/productingest/internal/model"
	"github.com/nao1215/productingest/internal/normalize"
	"github.com/nao1215/productingest/internal/pipeline"
	"github.com/nao1215/productingest/internal/report"
	"github.com/nao1215/productingest/internal/scraper"
	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [query...]",
		Short: "Fetch search results and store new products",
		Long: `Ingest runs one search query (or several) through the selected acquisition
strategy, walks the result pages and stores every product not seen before.

Each query and strategy pair is an independent run. A page that cannot be
fetched after all retries is recorded in the run report and the run moves on
to the next page, unless --fail-fast is set. Ctrl+C stops every run before its
next page; the page in flight is finished and its report saved.

Examples:
  # Ingest the default query through the rendered search page
  productingest ingest "Mobile Phones"

  # Use the API first and then the search page, three pages each
  productingest ingest --strategy both --pages 3 "Laptops"

  # Only the first page, output a JSON report
  productingest ingest --no-pagination --json "Tablets"

  # Store records in PostgreSQL
  productingest ingest --store postgres --postgres-dsn postgres://localhost/products "Mobile Phones"

Queries given as arguments replace the queries of the configuration file.`,
		Args: cobra.ArbitraryArgs,
		RunE: runIngestCmd,
	}

	// Acquisition flags
	cmd.Flags().StringP("strategy", "s", config.StrategyHTML,
		"Acquisition strategy: html, api or both")
	cmd.Flags().IntP("pages", "p", config.DefaultMaxPages,
		"Last page to fetch (inclusive)")
	cmd.Flags().Bool("no-pagination", false,
		"Fetch only the first page")
	cmd.Flags().Duration("page-delay", config.DefaultPageDelay,
		"Pause between two pages")
	cmd.Flags().Int("retry-attempts", config.DefaultRetryAttempts,
		"Total attempts per request")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay,
		"Wait between two attempts")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of a single request")
	cmd.Flags().Duration("run-timeout", 0,
		"Deadline for each run (0 disables it)")
	cmd.Flags().Bool("fail-fast", false,
		"Stop a run at the first page that cannot be fetched")
	cmd.Flags().String("dedup-scope", config.DedupScopeGlobal,
		"Identity of a stored product: global or source (fixed when the store is created)")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (host:port)")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second (0 means unlimited)")
	cmd.Flags().Bool("harvest-cookies", false,
		"Collect session cookies from the site root before API runs")

	// Batch
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of queries processed concurrently")

	// Store flags
	addStoreFlags(cmd)

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .productingest in current or home directory)")

	// Report flags
	addReportFlags(cmd)

	return cmd
}

// addStoreFlags adds the flags selecting the record store.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", config.StoreSQLite,
		"Record store: sqlite or postgres")
	cmd.Flags().String("postgres-dsn", "",
		"PostgreSQL connection string (with --store postgres)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the SQLite database")
}

// addReportFlags adds the report format and destination flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("tee", false,
		"With --output, also print a text summary to stdout")
}

// errIncompleteRuns is returned when every run finished but some pages failed.
var errIncompleteRuns = errors.New("ingest finished with failed pages")

// runIngestCmd executes the ingest command.
func runIngestCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Queries = args
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runIngest(ctx, cfg, cmd.OutOrStdout(), logger)
}

// runIngest executes every configured run and writes the report to out
// (or to cfg.ReportFile). The returned error joins the errors of failed runs.
func runIngest(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	logger.Info("starting ingest",
		"queries", cfg.Queries,
		"strategy", cfg.Strategy,
		"store", cfg.Store,
		"batch", cfg.BatchSize,
	)

	store, err := openStore(ctx, cfg, database.DedupScope(cfg.DedupScope))
	if err != nil {
		return err
	}
	defer store.Close()

	pipelines, err := buildPipelines(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	bp := pipeline.NewBatchProcessor(pipelines,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Reports are saved even when the run was cancelled.
	saveCtx := context.WithoutCancel(ctx)
	reports, runErr := bp.ProcessBatchWithCallback(ctx, cfg.Queries, func(r *model.RunReport) {
		if err := store.SaveRunReport(saveCtx, r); err != nil {
			logger.Error("failed to save run report", "run_id", r.RunID, "error", err)
			return
		}
		logger.Info("run report saved", "run_id", r.RunID, "summary", r.Summary())
	})

	if err := outputReport(cfg, out, func(w report.Writer) error {
		_, err := w.Write(reports)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	incomplete := 0
	for _, r := range reports {
		if !r.HasFailures() {
			continue
		}
		incomplete++
		logger.Warn("run finished with failures",
			"run_id", r.RunID,
			"strategy", r.Strategy,
			"query", r.Query,
			"failed_pages", r.FailedPages,
			"error", r.Error,
		)
	}

	if runErr != nil {
		return fmt.Errorf("ingest finished with errors: %w", runErr)
	}
	if incomplete > 0 {
		return fmt.Errorf("%w: %d of %d runs", errIncompleteRuns, incomplete, len(reports))
	}
	return nil
}

// buildPipelines wires one pipeline per selected strategy, in running order.
func buildPipelines(ctx context.Context, cfg *config.Config, store database.Store, logger *slog.Logger) ([]*pipeline.Pipeline, error) {
	client, err := fetch.NewHTTPClient(cfg.ProxyAddress, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	fetcher := fetch.NewFetcher(client,
		fetch.WithAttempts(cfg.RetryAttempts),
		fetch.WithRetryDelay(cfg.RetryDelay),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithRateLimit(cfg.RequestRate),
		fetch.WithLogger(logger),
	)

	normalizer, err := normalize.NewNormalizer(cfg.BaseURL, cfg.Source, normalize.ImageOptions{
		Width:   cfg.ImageWidth,
		Height:  cfg.ImageHeight,
		Quality: cfg.ImageQuality,
	})
	if err != nil {
		return nil, err
	}

	persister := pipeline.NewPersister(store)
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithSource(cfg.Source),
		pipeline.WithPagination(cfg.Pagination, cfg.MaxPages),
		pipeline.WithPageDelay(cfg.PageDelay),
		pipeline.WithFailFast(cfg.FailFast),
		pipeline.WithRunTimeout(cfg.RunTimeout),
	}

	pipelines := make([]*pipeline.Pipeline, 0, 2)
	for _, name := range cfg.Strategies() {
		var strategy scraper.Strategy
		switch name {
		case config.StrategyAPI:
			api, err := scraper.NewAPIScraper(ctx, fetcher, cfg.APIURL,
				extract.NewAPIExtractor(cfg.SessionID, cfg.SearchQueryID),
				normalizer,
				credentialProvider(cfg, client, logger),
			)
			if err != nil {
				return nil, err
			}
			strategy = api
		default:
			strategy = scraper.NewHTMLScraper(fetcher, cfg.SearchURL, normalizer)
		}
		pipelines = append(pipelines, pipeline.New(strategy, persister, opts...))
	}
	return pipelines, nil
}

// credentialProvider returns the configured cookies and headers layered over
// harvested or default values.
func credentialProvider(cfg *config.Config, client *http.Client, logger *slog.Logger) credentials.Provider {
	site := strings.TrimSuffix(cfg.BaseURL, "/")
	static := credentials.NewStatic(cfg.Credentials.Cookies, cfg.Credentials.Headers)

	var fallback credentials.Provider
	if cfg.HarvestCookies {
		fallback = credentials.NewHarvester(client, site,
			credentials.WithUserAgent(cfg.UserAgent),
			credentials.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
			credentials.WithLogger(logger),
		)
	} else {
		fallback = credentials.NewStatic(nil, credentials.DefaultHeaders(site, cfg.UserAgent))
	}
	return credentials.Merge(static, fallback)
}

// newReportWriter returns the writer for the format selected in cfg.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// outputReport calls write with a writer for the selected format and
// destination. The destination is cfg.ReportFile or, when empty, stdout.
// With cfg.TeeReport a text summary also goes to stdout.
func outputReport(cfg *config.Config, stdout io.Writer, write func(report.Writer) error) error {
	if cfg.ReportFile == "" {
		return write(newReportWriter(cfg, stdout))
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	w := newReportWriter(cfg, f)
	if cfg.TeeReport {
		w = report.NewMultiWriter(w, report.NewSimpleWriter(stdout))
	}
	if err := write(w); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
