package model

import (
	"net/url"
	"strings"
	"time"
)

// Backend names recorded in ResultItem.Backend.
const (
	// BackendCSE is the Google Custom Search JSON API backend.
	BackendCSE = "google-cse"

	// BackendDuckDuckGo is the DuckDuckGo HTML scraping backend.
	BackendDuckDuckGo = "duckduckgo"
)

// ResultItem is a single search result.
// It is created from a backend response and is not modified afterwards;
// attaching snapshot data produces a new value (see WithSnapshot).
type ResultItem struct {
	// Timestamp is when the backend returned the result.
	Timestamp time.Time `json:"timestamp"`

	// Category is the catalog category of the query that produced the result.
	Category string `json:"category"`

	// Dork is the template the query was built from.
	Dork string `json:"dork"`

	// Query is the exact query text sent to the backend.
	Query string `json:"query"`

	// URL is the result link.
	URL string `json:"url"`

	// Title is the result title as reported by the backend.
	Title string `json:"title,omitempty"`

	// Snippet is the short description shown by the search engine.
	Snippet string `json:"snippet,omitempty"`

	// Backend is the name of the backend that produced the result.
	Backend string `json:"source_backend"`

	// Sensitive is true when the query came from a sensitive catalog entry.
	Sensitive bool `json:"sensitive"`

	// SnapshotPath is the file holding the saved page body.
	// Empty when snapshotting is disabled or the capture failed.
	SnapshotPath string `json:"snapshot_path,omitempty"`

	// Status is the HTTP status of the snapshot fetch, 0 if none was made.
	Status int `json:"status,omitempty"`

	// SensitiveHint is set when the snapshot body looks like it contains credentials.
	SensitiveHint bool `json:"sensitive_hint,omitempty"`
}

// NewResultItem creates a ResultItem for the given query.
func NewResultItem(q Query, backend, link, title, snippet string) ResultItem {
	return ResultItem{
		Timestamp: time.Now().UTC(),
		Category:  q.Category,
		Dork:      q.Template,
		Query:     q.Text,
		URL:       link,
		Title:     strings.TrimSpace(title),
		Snippet:   strings.TrimSpace(snippet),
		Backend:   backend,
		Sensitive: q.Sensitive,
	}
}

// WithQuery returns a copy of the item attributed to q.
// Backends only know the query text; the dispatcher attaches the rest.
func (r ResultItem) WithQuery(q Query) ResultItem {
	r.Category = q.Category
	r.Dork = q.Template
	r.Query = q.Text
	r.Sensitive = q.Sensitive
	return r
}

// Domain returns the lowercased host part of the result URL,
// or an empty string if the URL cannot be parsed.
func (r ResultItem) Domain() string {
	return DomainOf(r.URL)
}

// WithSnapshot returns a copy of the item carrying the snapshot data.
func (r ResultItem) WithSnapshot(s *Snapshot) ResultItem {
	if s == nil {
		return r
	}
	r.SnapshotPath = s.Path
	r.Status = s.Status
	r.SensitiveHint = s.SensitiveHint
	if r.Title == "" {
		r.Title = s.Title
	}
	return r
}

// DomainOf returns the lowercased host (including any port) of rawURL.
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// Snapshot is a saved copy of a result page.
type Snapshot struct {
	// URL is the page that was fetched.
	URL string `json:"url"`

	// Path is the file the raw body was written to.
	Path string `json:"path"`

	// Status is the HTTP response status code.
	Status int `json:"status"`

	// Title is the page <title>, if any.
	Title string `json:"title,omitempty"`

	// SensitiveHint is set when the body matched a credential pattern.
	SensitiveHint bool `json:"sensitive_hint"`
}
