package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/productingest/internal/model"
)

// State is a phase of the run state machine.
type State int

// Run states. A run moves Idle -> FetchingPage -> Extracting -> Normalizing ->
// Persisting, loops back to FetchingPage for the next page and ends in Done.
const (
	StateIdle State = iota
	StateFetchingPage
	StateExtracting
	StateNormalizing
	StatePersisting
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingPage:
		return "fetching_page"
	case StateExtracting:
		return "extracting"
	case StateNormalizing:
		return "normalizing"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// StateHook observes state transitions. page is zero for Idle and Done.
// The hook is called synchronously from the running pipeline.
type StateHook func(state State, page int)

func (p *Pipeline) transition(logger *slog.Logger, state State, page int) {
	logger.Debug("state", "state", state.String(), "page", page)
	if p.onState != nil {
		p.onState(state, page)
	}
}

// runPage fetches, extracts, normalizes and persists one page.
// The returned error is the fetch error; every later failure is counted in
// the page result instead.
func (p *Pipeline) runPage(ctx context.Context, logger *slog.Logger, query string, page int) (model.PageResult, error) {
	start := time.Now()
	result := model.PageResult{Page: page}
	logger = logger.With("page", page)

	p.transition(logger, StateFetchingPage, page)
	body, err := p.strategy.Fetch(ctx, query, page)
	if err != nil {
		logger.Warn("page fetch failed", "error", err)
		result.FetchError = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	p.transition(logger, StateExtracting, page)
	extracted, err := p.strategy.Extract(body)
	if err != nil {
		logger.Warn("extraction failed", "error", err)
		result.ExtractionError = err.Error()
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Found = len(extracted.Products)
	result.SlotsSkipped = extracted.Skipped

	for _, raw := range extracted.Products {
		p.transition(logger, StateNormalizing, page)
		product, err := p.strategy.Normalize(raw)
		if err != nil {
			logger.Warn("skipping malformed product", "error", err)
			result.Malformed++
			continue
		}

		p.transition(logger, StatePersisting, page)
		outcome, err := p.persister.Persist(ctx, product)
		if err != nil {
			logger.Error("failed to persist product", "product_id", product.ProductID, "error", err)
			result.PersistErrors++
			continue
		}

		switch outcome {
		case OutcomeInserted:
			result.Inserted++
		case OutcomeExists:
			result.Skipped++
		}
		logger.Debug("persisted product", "product_id", product.ProductID, "outcome", outcome.String())
	}

	result.Duration = time.Since(start)
	logger.Info("page processed",
		"found", result.Found,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"malformed", result.Malformed,
	)
	return result, nil
}
