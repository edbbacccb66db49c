// Package output persists search results as JSON Lines and CSV.
//
// Both files live in the run's output directory and are append-only.
// Every result is written to both files or to neither: the two encodings
// are prepared in memory first, and a failed CSV append rolls the JSONL
// file back to its previous size.
package output
