package scraper

import (
	"context"

	"github.com/nao1215/productingest/internal/extract"
	"github.com/nao1215/productingest/internal/fetch"
	"github.com/nao1215/productingest/internal/model"
)

// HTMLScraper reads products from the rendered search page.
type HTMLScraper struct {
	fetcher    Fetcher
	searchURL  string
	extractor  *extract.HTMLExtractor
	normalizer Normalizer
}

// NewHTMLScraper creates an HTMLScraper that queries searchURL.
func NewHTMLScraper(fetcher Fetcher, searchURL string, normalizer Normalizer) *HTMLScraper {
	return &HTMLScraper{
		fetcher:    fetcher,
		searchURL:  searchURL,
		extractor:  extract.NewHTMLExtractor(),
		normalizer: normalizer,
	}
}

// Name returns "html".
func (s *HTMLScraper) Name() string {
	return NameHTML
}

// Fetch GETs the search page for query and page.
func (s *HTMLScraper) Fetch(ctx context.Context, query string, page int) ([]byte, error) {
	resp, err := s.fetcher.Fetch(ctx, fetch.Request{
		URL:   s.searchURL,
		Query: SearchParams(query, page),
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Extract reads the embedded page state.
func (s *HTMLScraper) Extract(body []byte) (extract.Result, error) {
	return s.extractor.Extract(body)
}

// Normalize delegates to the normalizer.
func (s *HTMLScraper) Normalize(raw model.RawProduct) (*model.Product, error) {
	return s.normalizer.Normalize(raw)
}
