package extract

import (
	"github.com/nao1215/productingest/internal/model"
)

// Slot classification values.
const (
	slotTypeWidget     = "WIDGET"
	widgetTypeProducts = "PRODUCT_SUMMARY"
)

// Result is the outcome of extracting one page.
type Result struct {
	// Products are the raw payloads in document order.
	Products []model.RawProduct

	// Skipped counts qualifying slots that carried no usable payload.
	Skipped int
}

// Extractor pulls raw product payloads out of a response body.
type Extractor interface {
	Extract(body []byte) (Result, error)
}

// collect appends the payload of every qualifying slot to res.
func (res *Result) collect(slots []any) {
	for _, s := range slots {
		slot, ok := s.(map[string]any)
		if !ok {
			continue
		}
		raw := model.RawProduct(slot)
		if raw.String("slotType") != slotTypeWidget || raw.String("widget.type") != widgetTypeProducts {
			continue
		}

		payload, ok := productPayload(raw)
		if !ok {
			res.Skipped++
			continue
		}
		res.Products = append(res.Products, payload)
	}
}

// productPayload returns widget.data.products[0].productInfo.value.
func productPayload(slot model.RawProduct) (model.RawProduct, bool) {
	v, ok := slot.Lookup("widget.data.products")
	if !ok {
		return nil, false
	}
	products, ok := v.([]any)
	if !ok || len(products) == 0 {
		return nil, false
	}
	first, ok := products[0].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok = model.RawProduct(first).Lookup("productInfo.value")
	if !ok {
		return nil, false
	}
	value, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return model.RawProduct(value), true
}
