package model

// DomainPlaceholder is the token in a dork template that is replaced by
// the target domain scope when a query is built.
const DomainPlaceholder = "{domain}"

// DorkEntry is a single query template from the dork catalog.
// Entries are created once when the catalog is loaded and never modified.
type DorkEntry struct {
	// Category is the catalog group this entry belongs to (e.g., "login_panels").
	Category string `json:"category" yaml:"category"`

	// Template is the query template. It may contain DomainPlaceholder.
	Template string `json:"template" yaml:"template"`

	// Sensitive marks entries likely to surface private or restricted data.
	// Sensitive entries are only dispatched when explicitly allowed.
	// An entry without the field is not sensitive.
	Sensitive bool `json:"sensitive" yaml:"sensitive"`
}

// Query is a concrete search query derived from a DorkEntry.
type Query struct {
	// Category is copied from the originating DorkEntry.
	Category string `json:"category"`

	// Template is the original dork template, kept for output records.
	Template string `json:"dork"`

	// Text is the query string sent to the search backend.
	Text string `json:"query"`

	// TargetDomain is the domain the query was scoped to, if any.
	TargetDomain string `json:"target_domain,omitempty"`

	// Sensitive is copied from the originating DorkEntry.
	Sensitive bool `json:"sensitive"`
}

// HasTarget reports whether the query is scoped to a target domain.
func (q Query) HasTarget() bool {
	return q.TargetDomain != ""
}
