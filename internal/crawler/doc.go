// Package crawler implements the per-URL pagination crawl: the listing card
// extractor, the pacing policy between pages, the page loop with its stop
// conditions, and the result sinks that persist what an attempt extracted.
// Page rendering is delegated to a PageProvider from internal/fetcher.
package crawler
