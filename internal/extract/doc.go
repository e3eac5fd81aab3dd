// Package extract locates raw product payloads inside fetched pages.
//
// Two extractors are provided, one per acquisition strategy:
//   - HTMLExtractor reads the state blob that the rendered search page embeds
//     in <script id="is_script"> and walks pageDataV4.page.data.
//   - APIExtractor builds the page-fetch request body and walks RESPONSE.slots
//     of the API response.
//
// Both apply the same slot rule: a slot qualifies when its slotType is WIDGET
// and its widget.type is PRODUCT_SUMMARY, and its payload is
// widget.data.products[0].productInfo.value. Qualifying slots without a usable
// payload are counted in Result.Skipped rather than failing the page.
//
// Every extraction failure matches ErrExtraction so callers can treat the page
// as empty and move on.
package extract
