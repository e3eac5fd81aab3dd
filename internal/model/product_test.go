package model

import (
	"encoding/json"
	"testing"
)

func TestDecodeRawProduct(t *testing.T) {
	t.Parallel()

	t.Run("keeps numbers exact", func(t *testing.T) {
		t.Parallel()

		raw, err := DecodeRawProduct([]byte(`{"id":12345678901234567890,"rating":{"average":4.35}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		id, ok := raw["id"].(json.Number)
		if !ok {
			t.Fatalf("expected json.Number, got %T", raw["id"])
		}
		if id.String() != "12345678901234567890" {
			t.Errorf("expected exact number text, got %s", id)
		}
	})

	t.Run("rejects non-object", func(t *testing.T) {
		t.Parallel()

		if _, err := DecodeRawProduct([]byte(`[1,2]`)); err == nil {
			t.Error("expected error for array input")
		}
	})
}

func TestRawProductLookup(t *testing.T) {
	t.Parallel()

	raw := RawProduct{
		"titles":       map[string]any{"title": "Phone X"},
		"availability": map[string]any{"displayState": "IN_STOCK"},
		"vertical":     "mobile",
		"media":        "not-an-object",
	}

	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{name: "top level", path: "vertical", want: "mobile", wantOK: true},
		{name: "nested", path: "titles.title", want: "Phone X", wantOK: true},
		{name: "missing leaf", path: "titles.subtitle", wantOK: false},
		{name: "missing root", path: "pricing.finalPrice", wantOK: false},
		{name: "through non-object", path: "media.images", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, ok := raw.Lookup(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if ok && v != tt.want {
				t.Errorf("Lookup(%q) = %v, want %q", tt.path, v, tt.want)
			}
			if got := raw.String(tt.path); got != tt.want {
				t.Errorf("String(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestJSONOrNull(t *testing.T) {
	t.Parallel()

	if got := string(JSONOrNull(nil)); got != "null" {
		t.Errorf("expected null, got %s", got)
	}
	if got := string(JSONOrNull(json.RawMessage(`{"a":1}`))); got != `{"a":1}` {
		t.Errorf("expected input to pass through, got %s", got)
	}
}

func TestProductJSONNamesMatchColumns(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(&Product{ProductID: "P1", WarrantySummary: "1 Year"})
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["product_id"] != "P1" || fields["warranty_summary"] != "1 Year" {
		t.Errorf("expected snake_case column names, got %s", data)
	}
}
