package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/productingest/internal/model"
)

// ErrStore matches every error returned by a Store.
var ErrStore = errors.New("store error")

// ErrInvalidDedupScope is returned when a store is opened with an unknown scope
// or with a scope other than the one it was created with.
var ErrInvalidDedupScope = errors.New("invalid dedup scope")

// DedupScope decides which columns identify a product.
type DedupScope string

const (
	// ScopeGlobal makes product_id unique across all sources.
	ScopeGlobal DedupScope = "global"

	// ScopeSource makes (source, product_id) unique.
	ScopeSource DedupScope = "source"
)

// Valid reports whether s is a known scope.
func (s DedupScope) Valid() bool {
	return s == ScopeGlobal || s == ScopeSource
}

// scopeMetaKey is the store_meta row holding the scope a store was created with.
const scopeMetaKey = "dedup_scope"

// resolveScope decides the scope of an opened store. An empty requested scope
// adopts the stored one; an empty stored scope means the store is new.
func resolveScope(stored, requested DedupScope) (DedupScope, error) {
	switch {
	case stored == "" && requested == "":
		return ScopeGlobal, nil
	case stored == "":
		return requested, nil
	case !stored.Valid():
		return "", fmt.Errorf("%w: store records unknown scope %q", ErrInvalidDedupScope, stored)
	case requested == "" || requested == stored:
		return stored, nil
	default:
		return "", fmt.Errorf("%w: store was created with scope %q, not %q", ErrInvalidDedupScope, stored, requested)
	}
}

// Store is the persistence collaborator of the ingestion pipeline.
type Store interface {
	// Exists reports whether a record with p's dedup key is stored.
	Exists(ctx context.Context, p *model.Product) (bool, error)

	// Insert stores p. It returns false without error when a record with the
	// same dedup key already exists.
	Insert(ctx context.Context, p *model.Product) (bool, error)

	// Get returns the record for (source, productID), or nil when absent.
	Get(ctx context.Context, source, productID string) (*model.Product, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Stats returns aggregate counts over stored records.
	Stats(ctx context.Context) (*Stats, error)

	// SaveRunReport records the outcome of one run.
	SaveRunReport(ctx context.Context, report *model.RunReport) error

	// GetRunReport returns the stored report for runID, or nil when absent.
	GetRunReport(ctx context.Context, runID string) (*model.RunReport, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// Close releases the underlying connections.
	Close() error
}

// Stats holds aggregate counts over the products table.
type Stats struct {
	Scope          DedupScope       `json:"dedup_scope"`
	Total          int64            `json:"total"`
	BySource       map[string]int64 `json:"by_source"`
	ByCategory     map[string]int64 `json:"by_category"`
	ByAvailability map[string]int64 `json:"by_availability"`
	LatestUpdate   time.Time        `json:"latest_update,omitzero"`

	// AvgRating is the mean of rating.average over the Rated records
	// whose average is a number.
	AvgRating float64 `json:"avg_rating"`
	Rated     int64   `json:"rated"`
}

func newStats(scope DedupScope) *Stats {
	return &Stats{
		Scope:          scope,
		BySource:       make(map[string]int64),
		ByCategory:     make(map[string]int64),
		ByAvailability: make(map[string]int64),
	}
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Strategy    string    `json:"strategy"`
	Query       string    `json:"query"`
	Source      string    `json:"source"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Inserted    int       `json:"inserted"`
	Skipped     int       `json:"skipped"`
	Malformed   int       `json:"malformed"`
	FailedPages int       `json:"failed_pages"`
	Summary     string    `json:"summary"`
}

// productColumns holds the encoded column values of a product.
type productColumns struct {
	rating         []byte
	specifications []byte
	media          []byte
	pricing        []byte
}

// encodeProduct prepares the JSON columns of p. Absent opaque values become JSON null.
func encodeProduct(p *model.Product) (productColumns, error) {
	if p == nil {
		return productColumns{}, fmt.Errorf("%w: nil product", ErrStore)
	}
	if p.ProductID == "" {
		return productColumns{}, fmt.Errorf("%w: empty product_id", ErrStore)
	}
	if p.Source == "" {
		return productColumns{}, fmt.Errorf("%w: product %s has no source", ErrStore, p.ProductID)
	}

	media := p.Media
	if media == nil {
		media = []string{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return productColumns{}, fmt.Errorf("%w: failed to encode media: %v", ErrStore, err)
	}

	return productColumns{
		rating:         model.JSONOrNull(p.Rating),
		specifications: model.JSONOrNull(p.Specifications),
		media:          mediaJSON,
		pricing:        model.JSONOrNull(p.Pricing),
	}, nil
}

// decodeMedia parses the stored media column.
func decodeMedia(data []byte) ([]string, error) {
	media := make([]string, 0)
	if len(data) == 0 || string(data) == "null" {
		return media, nil
	}
	if err := json.Unmarshal(data, &media); err != nil {
		return nil, fmt.Errorf("%w: failed to decode media: %v", ErrStore, err)
	}
	return media, nil
}

// runSummaryOf builds the stored summary row of a report.
func runSummaryOf(r *model.RunReport) RunSummary {
	return RunSummary{
		RunID:       r.RunID,
		Strategy:    r.Strategy,
		Query:       r.Query,
		Source:      r.Source,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Inserted:    r.Inserted,
		Skipped:     r.Skipped,
		Malformed:   r.Malformed,
		FailedPages: len(r.FailedPages),
		Summary:     r.Summary(),
	}
}

// storedTimeLayout is fixed width so text comparison orders rows by time.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats SQLite may return.
// More specific formats come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	storedTimeLayout,
	"2006-01-02 15:04:05.999",
	"2006-01-02 15:04:05.999999999-07:00",
}

// parseTimestamp tries each known format and returns the zero time when none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
