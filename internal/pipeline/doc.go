// Package pipeline drives ingestion runs.
//
// A Pipeline pairs one acquisition strategy with a Persister and walks the
// result pages of a query: each page is fetched, its product payloads are
// extracted and normalized, and every record is persisted at most once.
// Failures are isolated to the smallest unit they affect (a record or a page)
// and folded into the run's model.RunReport.
//
// BatchProcessor runs independent pipelines for several queries with bounded
// concurrency using errgroup.
package pipeline
