package scraper

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nao1215/productingest/internal/credentials"
	"github.com/nao1215/productingest/internal/extract"
	"github.com/nao1215/productingest/internal/fetch"
	"github.com/nao1215/productingest/internal/model"
)

// APIScraper reads products from the private page-fetch endpoint.
type APIScraper struct {
	fetcher    Fetcher
	apiURL     string
	extractor  *extract.APIExtractor
	normalizer Normalizer
	cookies    map[string]string
	headers    map[string]string
}

// NewAPIScraper creates an APIScraper.
// The credential provider is consulted once, here; every page reuses the result.
func NewAPIScraper(
	ctx context.Context,
	fetcher Fetcher,
	apiURL string,
	extractor *extract.APIExtractor,
	normalizer Normalizer,
	provider credentials.Provider,
) (*APIScraper, error) {
	cookies, err := provider.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get API cookies: %w", err)
	}
	headers, err := provider.Headers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get API headers: %w", err)
	}

	return &APIScraper{
		fetcher:    fetcher,
		apiURL:     apiURL,
		extractor:  extractor,
		normalizer: normalizer,
		cookies:    cookies,
		headers:    headers,
	}, nil
}

// Name returns "api".
func (s *APIScraper) Name() string {
	return NameAPI
}

// Fetch POSTs the page request for query and page.
func (s *APIScraper) Fetch(ctx context.Context, query string, page int) ([]byte, error) {
	resp, err := s.fetcher.Fetch(ctx, fetch.Request{
		Method:   http.MethodPost,
		URL:      s.apiURL,
		JSONBody: s.extractor.BuildPageRequest(query, page),
		Headers:  s.headers,
		Cookies:  s.cookies,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Extract walks the response slots.
func (s *APIScraper) Extract(body []byte) (extract.Result, error) {
	return s.extractor.Extract(body)
}

// Normalize delegates to the normalizer.
func (s *APIScraper) Normalize(raw model.RawProduct) (*model.Product, error) {
	return s.normalizer.Normalize(raw)
}
