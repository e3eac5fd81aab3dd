package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and describe exactly which
// option is wrong, so callers can match them with errors.Is().
var (
	// ErrNoQuery is returned when no search query is configured.
	ErrNoQuery = errors.New("no query specified: provide a search query as an argument or in the config file")

	// ErrInvalidStrategy is returned when the strategy is not html, api or both.
	ErrInvalidStrategy = errors.New("invalid strategy: must be one of html, api, both")

	// ErrInvalidMaxPages is returned when pagination is enabled with a non-positive page bound.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidPageDelay is returned when the inter-page delay is negative.
	ErrInvalidPageDelay = errors.New("invalid page delay: must be non-negative")

	// ErrInvalidRetryAttempts is returned when fewer than one fetch attempt is configured.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts: must be at least 1")

	// ErrInvalidRetryDelay is returned when the delay between attempts is negative.
	ErrInvalidRetryDelay = errors.New("invalid retry delay: must be non-negative")

	// ErrInvalidTimeout is returned when the per-request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRunTimeout is returned when the overall run deadline is negative.
	// Zero disables the deadline.
	ErrInvalidRunTimeout = errors.New("invalid run timeout: must be non-negative")

	// ErrInvalidBatchSize is returned when the number of concurrent queries is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidDedupScope is returned when the dedup scope is not global or source.
	ErrInvalidDedupScope = errors.New("invalid dedup scope: must be one of global, source")

	// ErrInvalidStore is returned when the store driver is unknown.
	ErrInvalidStore = errors.New("invalid store: must be one of sqlite, postgres")

	// ErrMissingPostgresDSN is returned when the postgres store is selected without a DSN.
	ErrMissingPostgresDSN = errors.New("postgres store requires a DSN (--postgres-dsn or store.postgresDSN)")

	// ErrInvalidBaseURL is returned when one of the site URLs is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid site URL: must be an absolute http or https URL")

	// ErrEmptySource is returned when the source tag is empty.
	ErrEmptySource = errors.New("invalid source: must not be empty")

	// ErrConflictingReportFormats is returned when both --json and --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidRequestRate is returned when the request rate is negative.
	// Zero means unlimited.
	ErrInvalidRequestRate = errors.New("invalid request rate: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")
)
