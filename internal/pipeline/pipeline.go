package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/productingest/internal/model"
	"github.com/nao1215/productingest/internal/scraper"
)

// Pipeline runs one strategy over the result pages of a query.
// A Pipeline holds no per-run state, so Run may be called repeatedly.
type Pipeline struct {
	strategy  scraper.Strategy
	persister *Persister

	// source is the tag written into each run report.
	source string

	// pagination enables walking pages 1..maxPages. Otherwise only page 1 is fetched.
	pagination bool
	maxPages   int

	// pageDelay is the pause between two consecutive pages.
	pageDelay time.Duration

	// failFast ends the run at the first page whose fetch failed.
	failFast bool

	// runTimeout bounds the whole run when positive.
	runTimeout time.Duration

	onState StateHook
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithSource sets the source tag recorded in run reports.
func WithSource(source string) Option {
	return func(p *Pipeline) {
		p.source = source
	}
}

// WithPagination enables or disables pagination and sets the inclusive page bound.
// A non-positive maxPages keeps the current bound.
func WithPagination(enabled bool, maxPages int) Option {
	return func(p *Pipeline) {
		p.pagination = enabled
		if maxPages > 0 {
			p.maxPages = maxPages
		}
	}
}

// WithPageDelay sets the pause between pages.
func WithPageDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.pageDelay = d
		}
	}
}

// WithFailFast makes a failed page fetch end the run with an error.
func WithFailFast(failFast bool) Option {
	return func(p *Pipeline) {
		p.failFast = failFast
	}
}

// WithRunTimeout bounds the whole run. Zero disables the deadline.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.runTimeout = d
	}
}

// WithStateHook registers a callback invoked on every state transition.
func WithStateHook(hook StateHook) Option {
	return func(p *Pipeline) {
		p.onState = hook
	}
}

// New creates a Pipeline for strategy writing through persister.
// Pagination defaults to pages 1..10 with a 5 second delay.
func New(strategy scraper.Strategy, persister *Persister, opts ...Option) *Pipeline {
	p := &Pipeline{
		strategy:   strategy,
		persister:  persister,
		pagination: true,
		maxPages:   10,
		pageDelay:  5 * time.Second,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Strategy returns the strategy the pipeline runs.
func (p *Pipeline) Strategy() scraper.Strategy {
	return p.strategy
}

// LastPage returns the last page a run will attempt.
func (p *Pipeline) LastPage() int {
	if !p.pagination {
		return 1
	}
	return p.maxPages
}

// Run ingests query and returns the run report.
//
// Cancellation and the run deadline are observed before each page and during
// the wait between pages. A page that has started always completes. When the
// run stops early the partial report is returned together with the context
// error. With fail-fast enabled a failed page fetch ends the run the same way.
func (p *Pipeline) Run(ctx context.Context, query string) (*model.RunReport, error) {
	report := model.NewRunReport(p.strategy.Name(), query, p.source)
	report.Pagination = p.pagination
	report.MaxPages = p.LastPage()

	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	logger := p.logger.With("strategy", p.strategy.Name(), "query", query, "run_id", report.RunID)
	logger.Info("starting run", "last_page", p.LastPage())
	p.transition(logger, StateIdle, 0)

	var runErr error
	for page := 1; page <= p.LastPage(); page++ {
		if page > 1 {
			runErr = sleep(ctx, p.pageDelay)
		} else {
			runErr = ctx.Err()
		}
		if runErr != nil {
			report.Cancelled = true
			logger.Warn("run stopped", "before_page", page, "reason", runErr)
			break
		}

		// The page runs detached from cancellation so a started page is never cut short.
		result, err := p.runPage(context.WithoutCancel(ctx), logger, query, page)
		report.AddPage(result)
		if err != nil && p.failFast {
			runErr = fmt.Errorf("page %d: %w", page, err)
			break
		}
	}

	p.transition(logger, StateDone, 0)
	report.Finish(runErr)

	logger.Info("run finished",
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"malformed", report.Malformed,
		"failed_pages", len(report.FailedPages),
		"elapsed", report.Duration(),
	)

	return report, runErr
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
