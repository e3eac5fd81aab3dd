package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawProduct is a product payload exactly as the site delivered it.
// Values follow encoding/json decoding with UseNumber, so numbers are json.Number.
type RawProduct map[string]any

// DecodeRawProduct decodes a JSON object into a RawProduct, keeping numbers exact.
func DecodeRawProduct(data []byte) (RawProduct, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw RawProduct
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode raw product: %w", err)
	}
	return raw, nil
}

// Lookup follows a dot separated path through nested objects.
// It returns false when any segment is missing or not an object.
func (r RawProduct) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "" when it is missing or not a string.
func (r RawProduct) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Product is the canonical product record.
// The JSON field names match the stored column names.
type Product struct {
	// ID is the surrogate key assigned by the store. Zero until read back.
	ID int64 `json:"id,omitempty"`

	// ProductID is the site's product identifier and the dedup key.
	ProductID string `json:"product_id"`

	// Title is the product title, trimmed and NFC normalized.
	Title string `json:"title"`

	// URL is the absolute product page URL.
	URL string `json:"url"`

	// Rating is the site's rating object, kept opaque.
	Rating json.RawMessage `json:"rating"`

	// Specifications holds the key specifications, kept opaque.
	Specifications json.RawMessage `json:"specifications"`

	// Media lists absolute image URLs in document order.
	Media []string `json:"media"`

	// Pricing is the site's pricing object, kept opaque.
	Pricing json.RawMessage `json:"pricing"`

	// Category is the product vertical.
	Category string `json:"category"`

	// WarrantySummary is the free text warranty line.
	WarrantySummary string `json:"warranty_summary"`

	// Availability is the display state, e.g. "IN_STOCK".
	Availability string `json:"availability"`

	// Source tags the site the record came from.
	Source string `json:"source"`

	// TimeUpdate is assigned by the store on insert.
	TimeUpdate time.Time `json:"time_update,omitzero"`
}

// NullJSON is the JSON null literal stored for absent opaque fields.
var NullJSON = json.RawMessage("null")

// JSONOrNull returns raw, or the JSON null literal when raw is empty.
func JSONOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return NullJSON
	}
	return raw
}
