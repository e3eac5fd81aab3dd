package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunReport is the aggregate outcome of one ingestion run,
// where a run is one strategy applied to one query.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Strategy is "html" or "api".
	Strategy string `json:"strategy"`

	// Query is the search term.
	Query string `json:"query"`

	// Source is the source tag of the records written by this run.
	Source string `json:"source"`

	// StartedAt and FinishedAt bracket the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Pagination and MaxPages echo the configuration the run used.
	Pagination bool `json:"pagination"`
	MaxPages   int  `json:"max_pages"`

	// Pages holds one entry per page that was attempted, in page order.
	Pages []PageResult `json:"pages"`

	// Totals over all pages.
	Found            int `json:"found"`
	Inserted         int `json:"inserted"`
	Skipped          int `json:"skipped"`
	Malformed        int `json:"malformed"`
	PersistErrors    int `json:"persist_errors"`
	ExtractionErrors int `json:"extraction_errors"`

	// FailedPages lists pages whose fetch exhausted all retries.
	FailedPages []int `json:"failed_pages,omitempty"`

	// Cancelled is set when the run stopped early on cancellation or deadline.
	Cancelled bool `json:"cancelled"`

	// Error holds the error that ended the run, if any.
	Error string `json:"error,omitempty"`
}

// PageResult holds the counters of a single page.
type PageResult struct {
	Page          int `json:"page"`
	Found         int `json:"found"`
	Inserted      int `json:"inserted"`
	Skipped       int `json:"skipped"`
	Malformed     int `json:"malformed"`
	PersistErrors int `json:"persist_errors"`

	// SlotsSkipped counts product slots that carried no usable product entry.
	SlotsSkipped int `json:"slots_skipped,omitempty"`

	// ExtractionError is set when the page body could not be parsed.
	ExtractionError string `json:"extraction_error,omitempty"`

	// FetchError is set when the page could not be fetched.
	FetchError string `json:"fetch_error,omitempty"`

	// Duration is the wall time spent on the page.
	Duration time.Duration `json:"duration"`
}

// NewRunReport creates a report with a fresh run ID and the start time set to now.
func NewRunReport(strategy, query, source string) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Strategy:  strategy,
		Query:     query,
		Source:    source,
		StartedAt: time.Now().UTC(),
		Pages:     make([]PageResult, 0),
	}
}

// AddPage appends a page result and folds its counters into the totals.
func (r *RunReport) AddPage(p PageResult) {
	r.Pages = append(r.Pages, p)
	r.Found += p.Found
	r.Inserted += p.Inserted
	r.Skipped += p.Skipped
	r.Malformed += p.Malformed
	r.PersistErrors += p.PersistErrors
	if p.ExtractionError != "" {
		r.ExtractionErrors++
	}
	if p.FetchError != "" {
		r.FailedPages = append(r.FailedPages, p.Page)
	}
}

// Finish stamps the end time and records err, if any.
func (r *RunReport) Finish(err error) {
	r.FinishedAt = time.Now().UTC()
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns the run's wall time. It is zero until Finish is called.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasFailures reports whether any page failed or the run ended with an error.
func (r *RunReport) HasFailures() bool {
	return len(r.FailedPages) > 0 || r.Error != ""
}

// Summary is a one line description used for logs and the run table.
func (r *RunReport) Summary() string {
	return fmt.Sprintf("%s %q: %d inserted, %d skipped, %d malformed, %d failed pages",
		r.Strategy, r.Query, r.Inserted, r.Skipped, r.Malformed, len(r.FailedPages))
}
