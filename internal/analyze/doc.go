// Package analyze summarizes a persisted result set.
//
// It reads results.jsonl (preferred) or results.csv from an output
// directory, or a single file of either format, and computes per-category
// counts, the most frequent domains and whether any sensitive record was
// found. Analysis is read-only: the same input always yields the same
// Summary.
package analyze
