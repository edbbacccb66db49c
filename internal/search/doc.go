// Package search provides the search backends that execute dork queries.
//
// Two backends are available:
//   - CSE: the Google Custom Search JSON API (requires an API key and a
//     search engine id)
//   - DuckDuckGo: a scraper for the DuckDuckGo HTML endpoint
//
// Every failure is reported as *BackendError carrying a Kind, so the
// dispatcher can record it against the query and continue with the rest.
// Quota exhaustion and rate limiting are surfaced, never retried here.
package search
