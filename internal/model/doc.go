// Package model defines the data structures shared by the ingestion packages.
//
// This package contains the following main types:
//   - RawProduct: an untyped product payload as found inside a page or API response
//   - Product: the canonical record written to the store
//   - RunReport: the aggregate outcome of one (strategy, query) run
//   - PageResult: the per-page counters inside a RunReport
//
// The types live in their own package because the extractor, normalizer,
// store and report writers all need them and would otherwise import each other.
package model
