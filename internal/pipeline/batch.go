package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/productingest/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor runs a set of pipelines over several queries concurrently.
// Queries run in parallel up to the concurrency limit. The pipelines of one
// query run one after another in the order given, so with both strategies
// selected the API pass completes before the HTML pass starts.
type BatchProcessor struct {
	pipelines   []*Pipeline
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of queries processed at once.
// Default is 1.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor running pipelines for every query.
func NewBatchProcessor(pipelines []*Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelines:   pipelines,
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch runs every pipeline for every query.
//
// Reports are returned in query order, and within a query in pipeline order,
// including the partial reports of runs that failed. A failing run does not
// stop other queries; the returned error joins the errors of all failed runs.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, queries []string) ([]*model.RunReport, error) {
	return bp.ProcessBatchWithCallback(ctx, queries, nil)
}

// ProcessBatchWithCallback is ProcessBatch with a callback invoked for each
// finished run. The callback runs on the worker goroutine that produced the
// report, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	queries []string,
	callback func(report *model.RunReport),
) ([]*model.RunReport, error) {
	bp.logger.Info("starting batch processing",
		"queries", len(queries),
		"strategies", len(bp.pipelines),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	results := make([][]*model.RunReport, len(queries))
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, query := range queries {
		g.Go(func() error {
			reports := make([]*model.RunReport, 0, len(bp.pipelines))
			for _, p := range bp.pipelines {
				report, err := p.Run(ctx, query)
				reports = append(reports, report)
				if callback != nil {
					callback(report)
				}
				if err != nil {
					bp.logger.Warn("run failed",
						"query", query,
						"strategy", p.Strategy().Name(),
						"error", err,
					)
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
			results[i] = reports
			return nil
		})
	}

	// Workers never return an error; failures are collected in errs.
	_ = g.Wait()

	bp.logger.Info("batch processing complete",
		"queries", len(queries),
		"elapsed", time.Since(startTime),
	)

	flat := make([]*model.RunReport, 0, len(queries)*len(bp.pipelines))
	for _, reports := range results {
		flat = append(flat, reports...)
	}
	return flat, errors.Join(errs...)
}
