package model

// CategoryCount is the number of results recorded for a category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DomainCount is the number of results recorded for a domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Summary is the aggregate view of a persisted result set.
type Summary struct {
	// Source is the file the summary was computed from.
	Source string `json:"source"`

	// Total is the number of records read.
	Total int `json:"total"`

	// CountPerCategory maps each category to its record count.
	CountPerCategory map[string]int `json:"count_per_category"`

	// Categories holds the same counts ordered by descending count,
	// ties broken by first-seen order.
	Categories []CategoryCount `json:"categories"`

	// SensitiveFound is true if any record is sensitive or carries a sensitive hint.
	SensitiveFound bool `json:"sensitive_found"`

	// SensitiveCount is the number of such records.
	SensitiveCount int `json:"sensitive_count"`

	// TopDomains lists every domain by descending count,
	// ties broken by first-seen order.
	TopDomains []DomainCount `json:"top_domains"`
}

// Top returns at most n entries of TopDomains. A non-positive n returns all.
func (s *Summary) Top(n int) []DomainCount {
	if n <= 0 || n >= len(s.TopDomains) {
		return s.TopDomains
	}
	return s.TopDomains[:n]
}

// HasSensitive reports whether sensitive records were found.
func (s *Summary) HasSensitive() bool {
	return s.SensitiveFound
}
