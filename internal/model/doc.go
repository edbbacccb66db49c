// Package model defines the core data structures used throughout dorkscan.
//
// This package contains the following main types:
//   - DorkEntry: A query template loaded from the dork catalog
//   - Query: A concrete search query built from a DorkEntry
//   - ResultItem: A single search result returned by a backend
//   - Snapshot: The saved copy of a result page
//   - Summary: Aggregate statistics computed by the analyzer
//
// The models are serializable to JSON so they can be persisted as JSONL
// records and reused by the report writers.
package model
