// Package snapshot saves the pages behind search results.
//
// Each page is stored under <output dir>/snapshots/ with a file name
// derived from the SHA3-256 hash of its URL, so the same URL always maps
// to the same file. The fetcher records the page title and the HTTP
// status, and flags bodies that look like they contain credentials.
package snapshot
