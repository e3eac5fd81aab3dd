package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/productingest/internal/fetch"
)

// Provider exposes pre-acquired session cookies and headers.
type Provider interface {
	Cookies(ctx context.Context) (map[string]string, error)
	Headers(ctx context.Context) (map[string]string, error)
}

// Static serves fixed cookies and headers.
type Static struct {
	cookies map[string]string
	headers map[string]string
}

// NewStatic creates a Static provider. The maps are copied.
func NewStatic(cookies, headers map[string]string) *Static {
	return &Static{cookies: clone(cookies), headers: clone(headers)}
}

// Cookies returns a copy of the static cookies.
func (s *Static) Cookies(_ context.Context) (map[string]string, error) {
	return clone(s.cookies), nil
}

// Headers returns a copy of the static headers.
func (s *Static) Headers(_ context.Context) (map[string]string, error) {
	return clone(s.headers), nil
}

// DefaultHeaders returns the browser-like header set the API endpoint expects.
func DefaultHeaders(siteURL, userAgent string) map[string]string {
	if userAgent == "" {
		userAgent = fetch.DefaultUserAgent
	}
	return map[string]string{
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
		"Connection":      "keep-alive",
		"Content-Type":    "application/json",
		"Origin":          siteURL,
		"Referer":         siteURL,
		"Sec-Fetch-Dest":  "empty",
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "same-site",
		"User-Agent":      userAgent,
		"X-User-Agent":    userAgent + " FKUA/website/42/website/Desktop",
	}
}

// Harvester visits the site root once and returns the cookies it sets.
// The visit happens on the first call to Cookies; later calls reuse the result.
type Harvester struct {
	siteURL    string
	userAgent  string
	client     *http.Client
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger

	// once guards the single visit. Its outcome, including an error from a
	// cancelled ctx, is kept for the Harvester's lifetime; build a new
	// Harvester to retry.
	once    sync.Once
	cookies map[string]string
	err     error
}

// HarvesterOption configures a Harvester.
type HarvesterOption func(*Harvester)

// WithUserAgent sets the User-Agent used for the visit and in the returned headers.
func WithUserAgent(ua string) HarvesterOption {
	return func(h *Harvester) {
		h.userAgent = ua
	}
}

// WithRetry sets the attempt budget and delay for the visit.
func WithRetry(attempts int, delay time.Duration) HarvesterOption {
	return func(h *Harvester) {
		h.attempts = attempts
		h.retryDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HarvesterOption {
	return func(h *Harvester) {
		h.logger = logger
	}
}

// NewHarvester creates a Harvester for siteURL.
// client supplies the transport; a private cookie jar is attached to a copy of it.
func NewHarvester(client *http.Client, siteURL string, opts ...HarvesterOption) *Harvester {
	if client == nil {
		client = http.DefaultClient
	}
	h := &Harvester{
		siteURL:    siteURL,
		userAgent:  fetch.DefaultUserAgent,
		client:     client,
		attempts:   fetch.DefaultAttempts,
		retryDelay: fetch.DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Cookies returns the cookies set by the site root.
func (h *Harvester) Cookies(ctx context.Context) (map[string]string, error) {
	h.once.Do(func() {
		h.cookies, h.err = h.harvest(ctx)
	})
	if h.err != nil {
		return nil, h.err
	}
	return clone(h.cookies), nil
}

// Headers returns DefaultHeaders for the site.
func (h *Harvester) Headers(_ context.Context) (map[string]string, error) {
	return DefaultHeaders(h.siteURL, h.userAgent), nil
}

func (h *Harvester) harvest(ctx context.Context) (map[string]string, error) {
	u, err := url.Parse(h.siteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site URL %q: %w", h.siteURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	jarClient := *h.client
	jarClient.Jar = jar

	f := fetch.NewFetcher(&jarClient,
		fetch.WithAttempts(h.attempts),
		fetch.WithRetryDelay(h.retryDelay),
		fetch.WithUserAgent(h.userAgent),
		fetch.WithLogger(h.logger),
	)

	h.logger.Info("harvesting session cookies", "url", h.siteURL)
	if _, err := f.Fetch(ctx, fetch.Request{
		URL: h.siteURL,
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to harvest cookies: %w", err)
	}

	cookies := make(map[string]string)
	for _, c := range jar.Cookies(u) {
		cookies[c.Name] = c.Value
	}
	h.logger.Info("harvested session cookies", "count", len(cookies))
	return cookies, nil
}

// merged layers primary over fallback.
type merged struct {
	primary  Provider
	fallback Provider
}

// Merge returns a Provider whose values come from fallback, overridden by primary.
// An error from either provider is returned as is.
func Merge(primary, fallback Provider) Provider {
	return &merged{primary: primary, fallback: fallback}
}

func (m *merged) Cookies(ctx context.Context) (map[string]string, error) {
	return m.combine(ctx, Provider.Cookies)
}

func (m *merged) Headers(ctx context.Context) (map[string]string, error) {
	return m.combine(ctx, Provider.Headers)
}

func (m *merged) combine(ctx context.Context, get func(Provider, context.Context) (map[string]string, error)) (map[string]string, error) {
	base, err := get(m.fallback, ctx)
	if err != nil {
		return nil, err
	}
	top, err := get(m.primary, ctx)
	if err != nil {
		return nil, err
	}
	out := clone(base)
	for k, v := range top {
		out[k] = v
	}
	return out, nil
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
