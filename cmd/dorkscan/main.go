// Package main provides the entry point for the dorkscan CLI.
//
// dorkscan runs a catalog of search-engine dorks against Google Custom
// Search or DuckDuckGo, records every hit to JSONL and CSV, and summarizes
// what it found. It is meant for authorized reconnaissance of domains you
// are allowed to test.
//
// Usage:
//
//	dorkscan scan -c login_panels -t example.com
//	dorkscan analyze gds_output
//
// See --help for all available options.
package main

func main() {
	Execute()
}
