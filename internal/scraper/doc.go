// Package scraper implements the acquisition strategies.
//
// A Strategy couples one way of fetching a results page with the extractor
// and normalizer that understand its body. The pipeline driver owns the page
// counter and pacing; strategies only know how to turn (query, page) into raw
// bytes and raw bytes into records.
//
// Two strategies exist:
//   - HTMLScraper fetches the rendered search page.
//   - APIScraper posts to the private page-fetch endpoint with session credentials.
package scraper
