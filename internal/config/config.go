package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Strategy names select how products are acquired.
const (
	// StrategyHTML fetches the rendered search page and reads the embedded state blob.
	StrategyHTML = "html"

	// StrategyAPI posts a browse-page request to the private API endpoint.
	StrategyAPI = "api"

	// StrategyBoth runs the API strategy and then the HTML strategy for every query.
	StrategyBoth = "both"
)

// Dedup scopes decide which fields form the identity of a stored product.
const (
	// DedupScopeGlobal treats product_id as unique across all sources.
	DedupScopeGlobal = "global"

	// DedupScopeSource treats (source, product_id) as the unique key.
	DedupScopeSource = "source"
)

// Store drivers.
const (
	// StoreSQLite keeps records in a local SQLite file under the data directory.
	StoreSQLite = "sqlite"

	// StorePostgres keeps records in a PostgreSQL database reached through PostgresDSN.
	StorePostgres = "postgres"
)

// Default configuration values.
// The acquisition constants mirror what the site expects from a desktop browser.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "productingest"

	// DefaultQuery is the search term used when none is given.
	DefaultQuery = "Mobile Phones"

	// DefaultSource is the source tag written to every record.
	DefaultSource = "flipkart"

	// DefaultBaseURL is the site root that relative product paths resolve against.
	DefaultBaseURL = "https://www.flipkart.com/"

	// DefaultSearchURL is the rendered search page.
	DefaultSearchURL = "https://www.flipkart.com/search"

	// DefaultAPIURL is the private page-fetch endpoint used by the mobile site.
	DefaultAPIURL = "https://1.rome.api.flipkart.com/api/4/page/fetch"

	// DefaultSessionID and DefaultSearchQueryID are the fixed session identifiers
	// sent in the API request context.
	DefaultSessionID     = "71zejon5o00000001756378958593"
	DefaultSearchQueryID = "yplr55f5z40000001756413455265"

	// DefaultMaxPages is the pagination bound (inclusive).
	DefaultMaxPages = 10

	// DefaultPageDelay is the pause between two consecutive pages.
	DefaultPageDelay = 5 * time.Second

	// DefaultRetryAttempts is the total number of attempts per request.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the fixed wait between two attempts.
	DefaultRetryDelay = 2 * time.Second

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of queries processed concurrently.
	// One keeps the observed single-threaded behavior.
	DefaultBatchSize = 1

	// DefaultUserAgent is sent with every request unless overridden by headers.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

	// DefaultMaxBodySize limits the response body size read per request.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// Image template values substituted into media URLs.
	DefaultImageWidth   = 416
	DefaultImageHeight  = 416
	DefaultImageQuality = 70
)

// Credentials holds pre-acquired cookies and headers for the API strategy.
type Credentials struct {
	// Cookies are sent as a Cookie header on API requests.
	Cookies map[string]string `yaml:"cookies,omitempty"`

	// Headers are added to API requests. They override the harvested defaults.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Config holds all configuration options for an ingestion run.
// It is populated from the config file and CLI flags and passed down explicitly.
type Config struct {
	// Queries are the search terms to ingest. Each query is an independent run.
	Queries []string

	// Strategy selects html, api or both.
	Strategy string

	// Pagination enables iterating pages 1..MaxPages. When false only page 1 is fetched.
	Pagination bool

	// MaxPages is the inclusive pagination bound.
	MaxPages int

	// PageDelay is the pause between pages.
	PageDelay time.Duration

	// RetryAttempts is the total number of attempts per request.
	RetryAttempts int

	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RunTimeout bounds a whole run. Zero disables the deadline.
	// The deadline is checked between pages; a page in flight always completes.
	RunTimeout time.Duration

	// FailFast stops a run at the first page whose fetch exhausted its retries.
	// When false the page is recorded as failed and pagination continues.
	FailFast bool

	// DedupScope is global or source.
	DedupScope string

	// Source is the source tag written to every record.
	Source string

	// BaseURL, SearchURL and APIURL locate the site.
	BaseURL   string
	SearchURL string
	APIURL    string

	// SessionID and SearchQueryID are sent in the API request context.
	SessionID     string
	SearchQueryID string

	// UserAgent is the default User-Agent header.
	UserAgent string

	// MaxBodySize limits the response body size read per request.
	MaxBodySize int64

	// ProxyAddress is an optional SOCKS5 proxy in host:port form.
	ProxyAddress string

	// RequestRate limits outbound requests per second. Zero means unlimited.
	RequestRate float64

	// BatchSize is the number of queries processed concurrently.
	BatchSize int

	// Store selects sqlite or postgres.
	Store string

	// PostgresDSN is the connection string for the postgres store.
	PostgresDSN string

	// DBDir is the directory holding the SQLite database file.
	DBDir string

	// HarvestCookies fetches the site root once to collect session cookies
	// before the API strategy runs.
	HarvestCookies bool

	// Credentials are static cookies and headers for the API strategy.
	Credentials Credentials

	// Image template values substituted into media URLs.
	ImageWidth   int
	ImageHeight  int
	ImageQuality int

	// ConfigFilePath is the path to the configuration file.
	ConfigFilePath string

	// JSONReport and MarkdownReport select the report format. Mutually exclusive.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the report output path. Empty means stdout.
	ReportFile string

	// TeeReport also prints a text summary to stdout when ReportFile is set.
	TeeReport bool

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Strategy:      StrategyHTML,
		Pagination:    true,
		MaxPages:      DefaultMaxPages,
		PageDelay:     DefaultPageDelay,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
		Timeout:       DefaultTimeout,
		DedupScope:    DedupScopeGlobal,
		Source:        DefaultSource,
		BaseURL:       DefaultBaseURL,
		SearchURL:     DefaultSearchURL,
		APIURL:        DefaultAPIURL,
		SessionID:     DefaultSessionID,
		SearchQueryID: DefaultSearchQueryID,
		UserAgent:     DefaultUserAgent,
		MaxBodySize:   DefaultMaxBodySize,
		BatchSize:     DefaultBatchSize,
		Store:         StoreSQLite,
		DBDir:         XDGDataDir(),
		ImageWidth:    DefaultImageWidth,
		ImageHeight:   DefaultImageHeight,
		ImageQuality:  DefaultImageQuality,
	}
}

// XDGDataDir returns the XDG data directory for productingest.
// On Linux: ~/.local/share/productingest
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for productingest.
// On Linux: ~/.config/productingest
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Strategies expands the Strategy option into the ordered list of strategies to run.
// The API strategy goes first when both are selected because it is the cheaper path.
func (c *Config) Strategies() []string {
	if c.Strategy == StrategyBoth {
		return []string{StrategyAPI, StrategyHTML}
	}
	return []string{c.Strategy}
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors in errors.go.
func (c *Config) Validate() error {
	if len(c.Queries) == 0 {
		return ErrNoQuery
	}

	switch c.Strategy {
	case StrategyHTML, StrategyAPI, StrategyBoth:
	default:
		return ErrInvalidStrategy
	}

	if c.Pagination && c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.PageDelay < 0 {
		return ErrInvalidPageDelay
	}
	if c.RetryAttempts < 1 {
		return ErrInvalidRetryAttempts
	}
	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RunTimeout < 0 {
		return ErrInvalidRunTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	switch c.DedupScope {
	case DedupScopeGlobal, DedupScopeSource:
	default:
		return ErrInvalidDedupScope
	}

	switch c.Store {
	case StoreSQLite:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return ErrMissingPostgresDSN
		}
	default:
		return ErrInvalidStore
	}

	for _, raw := range []string{c.BaseURL, c.SearchURL, c.APIURL} {
		if !isHTTPURL(raw) {
			return ErrInvalidBaseURL
		}
	}
	if c.Source == "" {
		return ErrEmptySource
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.RequestRate < 0 {
		return ErrInvalidRequestRate
	}
	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}

// isHTTPURL reports whether raw is an absolute http or https URL with a host.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
