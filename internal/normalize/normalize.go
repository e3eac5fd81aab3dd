// Package normalize maps raw product payloads to canonical product records.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/productingest/internal/model"
)

// ErrMalformedPayload is returned when a payload lacks a required field.
// It is a per-record failure; callers skip the record and continue.
var ErrMalformedPayload = errors.New("malformed product payload")

// Image template placeholders used in media URLs.
const (
	placeholderWidth   = "{@width}"
	placeholderHeight  = "{@height}"
	placeholderQuality = "{@quality}"
)

// ImageOptions are substituted into media URL templates.
// A zero value leaves the matching placeholder untouched.
type ImageOptions struct {
	Width   int
	Height  int
	Quality int
}

// Normalizer converts RawProduct payloads into model.Product records.
// It performs no I/O and is safe for concurrent use.
type Normalizer struct {
	// BaseURL is the site root that relative paths resolve against.
	BaseURL *url.URL

	// Source is written to every record.
	Source string

	// Images configures media URL template substitution.
	Images ImageOptions
}

// NewNormalizer creates a Normalizer for the given site root and source tag.
func NewNormalizer(baseURL, source string, images ImageOptions) (*Normalizer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("invalid base URL %q: must be absolute", baseURL)
	}
	return &Normalizer{BaseURL: u, Source: source, Images: images}, nil
}

// Normalize maps raw to a Product.
// id, titles.title and baseUrl are required. An absent rating, keySpecs or
// pricing becomes JSON null, absent media an empty list, and an absent
// vertical, warrantySummary or availability.displayState an empty string.
func (n *Normalizer) Normalize(raw model.RawProduct) (*model.Product, error) {
	productID, err := requiredID(raw)
	if err != nil {
		return nil, err
	}

	title, ok := raw.Lookup("titles.title")
	titleStr, isString := title.(string)
	titleStr = strings.TrimSpace(titleStr)
	if !ok || !isString || titleStr == "" {
		return nil, malformed(productID, "titles.title")
	}

	basePath, _ := raw["baseUrl"].(string)
	if basePath == "" {
		return nil, malformed(productID, "baseUrl")
	}
	productURL, err := n.resolve(basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: product %s: invalid baseUrl: %v", ErrMalformedPayload, productID, err)
	}

	rating, err := opaque(raw, "rating")
	if err != nil {
		return nil, fmt.Errorf("%w: product %s: %v", ErrMalformedPayload, productID, err)
	}
	specs, err := opaque(raw, "keySpecs")
	if err != nil {
		return nil, fmt.Errorf("%w: product %s: %v", ErrMalformedPayload, productID, err)
	}
	pricing, err := opaque(raw, "pricing")
	if err != nil {
		return nil, fmt.Errorf("%w: product %s: %v", ErrMalformedPayload, productID, err)
	}

	return &model.Product{
		ProductID:       productID,
		Title:           norm.NFC.String(titleStr),
		URL:             productURL,
		Rating:          rating,
		Specifications:  specs,
		Media:           n.media(raw),
		Pricing:         pricing,
		Category:        raw.String("vertical"),
		WarrantySummary: raw.String("warrantySummary"),
		Availability:    raw.String("availability.displayState"),
		Source:          n.Source,
	}, nil
}

// requiredID accepts a non-empty string or a number.
func requiredID(raw model.RawProduct) (string, error) {
	switch v := raw["id"].(type) {
	case string:
		if id := strings.TrimSpace(v); id != "" {
			return id, nil
		}
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: missing or invalid field %q", ErrMalformedPayload, "id")
}

func malformed(productID, field string) error {
	return fmt.Errorf("%w: product %s: missing or invalid field %q", ErrMalformedPayload, productID, field)
}

// opaque re-encodes the value at key, or returns JSON null when absent.
func opaque(raw model.RawProduct, key string) (json.RawMessage, error) {
	v, ok := raw[key]
	if !ok {
		return model.NullJSON, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return data, nil
}

// media returns media.images[].url resolved to absolute URLs, in order.
// Entries without a URL are dropped. The result is never nil.
func (n *Normalizer) media(raw model.RawProduct) []string {
	out := make([]string, 0)

	v, ok := raw.Lookup("media.images")
	if !ok {
		return out
	}
	images, ok := v.([]any)
	if !ok {
		return out
	}

	for _, img := range images {
		obj, ok := img.(map[string]any)
		if !ok {
			continue
		}
		src, _ := obj["url"].(string)
		if src == "" {
			continue
		}
		resolved, err := n.resolve(n.expandTemplate(src))
		if err != nil {
			continue
		}
		out = append(out, resolved)
	}
	return out
}

// expandTemplate fills the image size and quality placeholders.
func (n *Normalizer) expandTemplate(src string) string {
	if !strings.Contains(src, "{@") {
		return src
	}
	pairs := make([]string, 0, 6)
	if n.Images.Width > 0 {
		pairs = append(pairs, placeholderWidth, strconv.Itoa(n.Images.Width))
	}
	if n.Images.Height > 0 {
		pairs = append(pairs, placeholderHeight, strconv.Itoa(n.Images.Height))
	}
	if n.Images.Quality > 0 {
		pairs = append(pairs, placeholderQuality, strconv.Itoa(n.Images.Quality))
	}
	if len(pairs) == 0 {
		return src
	}
	return strings.NewReplacer(pairs...).Replace(src)
}

// resolve resolves ref against the base URL. Absolute references are returned as is.
func (n *Normalizer) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return ref, nil
	}
	return n.BaseURL.ResolveReference(u).String(), nil
}
