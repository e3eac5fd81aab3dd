package scraper

import (
	"context"
	"net/url"
	"strconv"

	"github.com/nao1215/productingest/internal/extract"
	"github.com/nao1215/productingest/internal/fetch"
	"github.com/nao1215/productingest/internal/model"
)

// Strategy names.
const (
	NameHTML = "html"
	NameAPI  = "api"
)

// Strategy is one acquisition channel.
type Strategy interface {
	// Name identifies the strategy in logs and reports.
	Name() string

	// Fetch retrieves the body of the given results page.
	Fetch(ctx context.Context, query string, page int) ([]byte, error)

	// Extract locates raw product payloads inside a fetched body.
	Extract(body []byte) (extract.Result, error)

	// Normalize maps a raw payload to a canonical record.
	Normalize(raw model.RawProduct) (*model.Product, error)
}

// Fetcher sends a request with retry. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// Normalizer maps raw payloads to records. *normalize.Normalizer implements it.
type Normalizer interface {
	Normalize(raw model.RawProduct) (*model.Product, error)
}

// SearchParams returns the query string of the rendered search page.
func SearchParams(query string, page int) url.Values {
	return url.Values{
		"q":           {query},
		"otracker":    {"search"},
		"otracker1":   {"search"},
		"marketplace": {"FLIPKART"},
		"as-show":     {"off"},
		"as":          {"off"},
		"page":        {strconv.Itoa(page)},
	}
}
