// Package fetch performs outbound HTTP requests for the scrapers.
//
// A Fetcher sends one logical request and retries it a bounded number of
// times with a fixed delay between attempts. Transport failures and non-2xx
// statuses are treated the same way. When every attempt fails the caller gets
// a *TransportError, which matches ErrTransport under errors.Is.
//
// The HTTP client can optionally be routed through a SOCKS5 proxy, and a
// token bucket limiter can cap the outbound request rate across all scrapers
// sharing the Fetcher.
package fetch
