// Package report renders analyzer summaries for people and tools.
//
// Three writers share the Writer interface:
//   - SimpleWriter: plain text for the terminal, optionally colored
//   - JSONWriter: the summary as a JSON document
//   - MarkdownWriter: a shareable document with tables and a mermaid chart
//
// Writers take the same options, so the CLI can pick one by flag and
// configure it once.
package report
