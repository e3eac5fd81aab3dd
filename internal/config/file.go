package config

import "time"

// File represents the structure of the .productingest configuration file.
// Every field is optional; unset fields keep the value already in Config.
type File struct {
	// Queries are the default search terms when none are given on the command line.
	Queries []string `yaml:"queries,omitempty"`

	// Strategy is html, api or both.
	Strategy string `yaml:"strategy,omitempty"`

	// Pagination enables the multi-page loop.
	Pagination *bool `yaml:"pagination,omitempty"`

	// MaxPages is the inclusive pagination bound.
	MaxPages int `yaml:"maxPages,omitempty"`

	// PageDelay is the pause between pages, e.g. "5s".
	PageDelay *time.Duration `yaml:"pageDelay,omitempty"`

	// Retry configures request retries.
	Retry RetryFile `yaml:"retry,omitempty"`

	// Timeout bounds a single request, e.g. "30s".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RunTimeout bounds a whole run, e.g. "10m".
	RunTimeout time.Duration `yaml:"runTimeout,omitempty"`

	// FailFast stops a run at the first failed page.
	FailFast *bool `yaml:"failFast,omitempty"`

	// DedupScope is global or source.
	DedupScope string `yaml:"dedupScope,omitempty"`

	// BatchSize is the number of queries processed concurrently.
	BatchSize int `yaml:"batchSize,omitempty"`

	// ProxyAddress is an optional SOCKS5 proxy in host:port form.
	ProxyAddress string `yaml:"proxy,omitempty"`

	// RequestRate limits outbound requests per second.
	RequestRate float64 `yaml:"requestRate,omitempty"`

	// Site overrides the site endpoints and identity.
	Site SiteFile `yaml:"site,omitempty"`

	// Store configures persistence.
	Store StoreFile `yaml:"store,omitempty"`

	// Images configures media URL template substitution.
	Images ImageFile `yaml:"images,omitempty"`

	// Credentials holds cookies and headers for the API strategy.
	Credentials CredentialsFile `yaml:"credentials,omitempty"`
}

// RetryFile configures request retries.
type RetryFile struct {
	// Attempts is the total number of attempts per request.
	Attempts int `yaml:"attempts,omitempty"`

	// Delay is the fixed wait between attempts.
	Delay *time.Duration `yaml:"delay,omitempty"`
}

// SiteFile overrides the site endpoints.
type SiteFile struct {
	Source        string `yaml:"source,omitempty"`
	BaseURL       string `yaml:"baseURL,omitempty"`
	SearchURL     string `yaml:"searchURL,omitempty"`
	APIURL        string `yaml:"apiURL,omitempty"`
	SessionID     string `yaml:"sessionID,omitempty"`
	SearchQueryID string `yaml:"searchQueryID,omitempty"`
	UserAgent     string `yaml:"userAgent,omitempty"`
}

// StoreFile configures persistence.
type StoreFile struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver,omitempty"`

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `yaml:"postgresDSN,omitempty"`

	// DBDir is the directory for the SQLite file.
	DBDir string `yaml:"dbDir,omitempty"`
}

// ImageFile configures media URL template substitution.
type ImageFile struct {
	Width   int `yaml:"width,omitempty"`
	Height  int `yaml:"height,omitempty"`
	Quality int `yaml:"quality,omitempty"`
}

// CredentialsFile holds cookies and headers for the API strategy.
type CredentialsFile struct {
	Credentials `yaml:",inline"`

	// Harvest collects session cookies from the site root before API runs.
	Harvest *bool `yaml:"harvest,omitempty"`
}

// Apply copies every set field of the file into cfg.
// Fields left at their zero value in the file do not touch cfg.
func (f *File) Apply(cfg *Config) {
	if len(f.Queries) > 0 {
		cfg.Queries = append([]string(nil), f.Queries...)
	}
	if f.Strategy != "" {
		cfg.Strategy = f.Strategy
	}
	if f.Pagination != nil {
		cfg.Pagination = *f.Pagination
	}
	if f.MaxPages != 0 {
		cfg.MaxPages = f.MaxPages
	}
	if f.PageDelay != nil {
		cfg.PageDelay = *f.PageDelay
	}
	if f.Retry.Attempts != 0 {
		cfg.RetryAttempts = f.Retry.Attempts
	}
	if f.Retry.Delay != nil {
		cfg.RetryDelay = *f.Retry.Delay
	}
	if f.Timeout != 0 {
		cfg.Timeout = f.Timeout
	}
	if f.RunTimeout != 0 {
		cfg.RunTimeout = f.RunTimeout
	}
	if f.FailFast != nil {
		cfg.FailFast = *f.FailFast
	}
	if f.DedupScope != "" {
		cfg.DedupScope = f.DedupScope
	}
	if f.BatchSize != 0 {
		cfg.BatchSize = f.BatchSize
	}
	if f.ProxyAddress != "" {
		cfg.ProxyAddress = f.ProxyAddress
	}
	if f.RequestRate != 0 {
		cfg.RequestRate = f.RequestRate
	}

	f.Site.apply(cfg)
	f.Store.apply(cfg)

	if f.Images.Width != 0 {
		cfg.ImageWidth = f.Images.Width
	}
	if f.Images.Height != 0 {
		cfg.ImageHeight = f.Images.Height
	}
	if f.Images.Quality != 0 {
		cfg.ImageQuality = f.Images.Quality
	}

	cfg.Credentials.Cookies = mergeMap(cfg.Credentials.Cookies, f.Credentials.Cookies)
	cfg.Credentials.Headers = mergeMap(cfg.Credentials.Headers, f.Credentials.Headers)
	if f.Credentials.Harvest != nil {
		cfg.HarvestCookies = *f.Credentials.Harvest
	}
}

func (s SiteFile) apply(cfg *Config) {
	if s.Source != "" {
		cfg.Source = s.Source
	}
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if s.SearchURL != "" {
		cfg.SearchURL = s.SearchURL
	}
	if s.APIURL != "" {
		cfg.APIURL = s.APIURL
	}
	if s.SessionID != "" {
		cfg.SessionID = s.SessionID
	}
	if s.SearchQueryID != "" {
		cfg.SearchQueryID = s.SearchQueryID
	}
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
}

func (s StoreFile) apply(cfg *Config) {
	if s.Driver != "" {
		cfg.Store = s.Driver
	}
	if s.PostgresDSN != "" {
		cfg.PostgresDSN = s.PostgresDSN
	}
	if s.DBDir != "" {
		cfg.DBDir = s.DBDir
	}
}

// mergeMap returns dst with every entry of src added, src winning on conflicts.
func mergeMap(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
