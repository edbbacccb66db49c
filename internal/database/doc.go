// Package database keeps a history of scan runs in SQLite.
//
// Every scan records when it ran, what it targeted, which backend it used,
// how many queries and results it produced, and each per-query backend
// failure. The history command reads it back.
//
// The store uses modernc.org/sqlite, a CGO-free driver, so the binary stays
// easy to cross-compile. One connection serializes writers and WAL mode keeps
// readers from blocking.
package database
