// Package query turns dork catalog entries into concrete search queries.
//
// Query building is the only place where sensitive entries are filtered:
// unless sensitive dorks are explicitly allowed, they never reach a
// search backend.
package query
