package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// Default fetcher settings.
const (
	DefaultAttempts    = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
)

// Request describes one logical outbound request.
type Request struct {
	// Method defaults to GET, or POST when JSONBody is set.
	Method string

	// URL is the absolute target URL.
	URL string

	// Query is merged into the URL's query string.
	Query url.Values

	// JSONBody, when non-nil, is marshaled and sent as application/json.
	JSONBody any

	// Headers are set on the request. They override the defaults.
	Headers map[string]string

	// Cookies are sent in the Cookie header.
	Cookies map[string]string
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// URL is the final URL after redirects.
	URL string
}

// Fetcher sends requests with bounded fixed-delay retry.
// A Fetcher is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	attempts    int
	retryDelay  time.Duration
	userAgent   string
	maxBodySize int64
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithAttempts sets the total number of attempts per request. Values below 1 are ignored.
func WithAttempts(n int) Option {
	return func(f *Fetcher) {
		if n >= 1 {
			f.attempts = n
		}
	}
}

// WithRetryDelay sets the fixed wait between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.retryDelay = d
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize sets the maximum response body size read per request.
func WithMaxBodySize(size int64) Option {
	return func(f *Fetcher) {
		f.maxBodySize = size
	}
}

// WithRateLimit caps outbound attempts at perSecond requests per second.
// Zero or a negative value disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(f *Fetcher) {
		if perSecond > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher using client. A nil client means http.DefaultClient.
func NewFetcher(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	f := &Fetcher{
		client:      client,
		attempts:    DefaultAttempts,
		retryDelay:  DefaultRetryDelay,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch sends req, retrying failed attempts after a fixed delay.
// Any transport error or non-2xx status counts as a failed attempt.
// When all attempts fail the returned error is a *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.JSONBody != nil {
			method = http.MethodPost
		}
	}

	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, &TransportError{Method: method, URL: req.URL, Err: err}
	}

	var body []byte
	if req.JSONBody != nil {
		body, err = json.Marshal(req.JSONBody)
		if err != nil {
			return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("failed to encode request body: %w", err)}
		}
	}

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if attempt > 1 && f.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, &TransportError{Method: method, URL: target, Attempts: attempt - 1, StatusCode: lastStatus, Err: ctx.Err()}
			case <-time.After(f.retryDelay):
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{Method: method, URL: target, Attempts: attempt - 1, StatusCode: lastStatus, Err: err}
			}
		}

		resp, err := f.do(ctx, method, target, body, req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			f.logger.Debug("fetched", "method", method, "url", target, "status", resp.StatusCode, "attempt", attempt, "bytes", len(resp.Body))
			return resp, nil
		}

		if err != nil {
			lastErr = err
			lastStatus = 0
		} else {
			lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
			lastStatus = resp.StatusCode
		}
		f.logger.Warn("request attempt failed",
			"method", method,
			"url", target,
			"attempt", attempt,
			"attempts", f.attempts,
			"error", lastErr,
		)
	}

	return nil, &TransportError{
		Method:     method,
		URL:        target,
		Attempts:   f.attempts,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

// do performs a single attempt and reads the body.
func (f *Fetcher) do(ctx context.Context, method, target string, body []byte, req Request) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for _, name := range sortedKeys(req.Cookies) {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: req.Cookies[name]})
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        resp.Request.URL.String(),
	}, nil
}

// buildURL merges query into rawURL's existing query string.
func buildURL(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid URL %q: scheme must be http or https", rawURL)
	}
	if len(query) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	for k, vs := range query {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
