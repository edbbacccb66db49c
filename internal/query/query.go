package query

import (
	"regexp"
	"strings"

	"github.com/nao1215/dorkscan/internal/catalog"
	"github.com/nao1215/dorkscan/internal/model"
)

var (
	sitePlaceholder = regexp.MustCompile(`(?i)site:\s*\{domain\}`)
	barePlaceholder = regexp.MustCompile(`(^|\s)\{domain\}(\s|$)`)
)

// Build derives one query per entry, substituting the target domain.
// Sensitive entries are dropped unless allowSensitive is true.
func Build(entries []model.DorkEntry, target string, allowSensitive bool) []model.Query {
	queries := make([]model.Query, 0, len(entries))
	for _, e := range entries {
		if e.Sensitive && !allowSensitive {
			continue
		}
		queries = append(queries, model.Query{
			Category:     e.Category,
			Template:     e.Template,
			Text:         Render(e.Template, target),
			TargetDomain: target,
			Sensitive:    e.Sensitive,
		})
	}
	return queries
}

// Render substitutes target into template.
//
// With a target, "site:{domain}" and a standalone "{domain}" both become
// "site:<target>", a placeholder embedded in a larger term becomes the bare
// target, and a template without placeholder is prefixed with "site:<target>".
// Without a target every placeholder is removed.
// Runs of whitespace are collapsed in both cases.
func Render(template, target string) string {
	if target == "" {
		out := sitePlaceholder.ReplaceAllString(template, "")
		out = strings.ReplaceAll(out, model.DomainPlaceholder, "")
		return collapse(out)
	}

	if !strings.Contains(template, model.DomainPlaceholder) {
		return collapse("site:" + target + " " + template)
	}

	site := "site:" + target
	out := sitePlaceholder.ReplaceAllLiteralString(template, site)
	// Matches consume the surrounding whitespace, so adjacent placeholders
	// need a second pass.
	for barePlaceholder.MatchString(out) {
		out = barePlaceholder.ReplaceAllString(out, "${1}"+site+"${2}")
	}
	out = strings.ReplaceAll(out, model.DomainPlaceholder, target)
	return collapse(out)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Plan is the set of queries selected for one run.
type Plan struct {
	// Queries are the queries to dispatch, grouped by category in selection order.
	Queries []model.Query

	// SkippedSensitive counts sensitive entries dropped per category.
	SkippedSensitive map[string]int

	// Unknown lists requested categories the catalog does not define.
	Unknown []string

	// Empty lists selected categories that have no entries.
	Empty []string
}

// SkippedTotal returns the number of sensitive entries dropped.
func (p *Plan) SkippedTotal() int {
	n := 0
	for _, c := range p.SkippedSensitive {
		n += c
	}
	return n
}

// BuildCatalog expands the selected categories of cat into queries.
// An empty selection means every category in file order.
// Unknown or empty categories produce no queries and no error.
func BuildCatalog(cat *catalog.Catalog, categories []string, target string, allowSensitive bool) *Plan {
	plan := &Plan{SkippedSensitive: make(map[string]int)}

	selected := categories
	if len(selected) == 0 {
		selected = cat.Categories()
	}

	seen := make(map[string]bool, len(selected))
	for _, name := range selected {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		if !cat.Has(name) {
			plan.Unknown = append(plan.Unknown, name)
			continue
		}

		entries := cat.Entries(name)
		if len(entries) == 0 {
			plan.Empty = append(plan.Empty, name)
			continue
		}

		queries := Build(entries, target, allowSensitive)
		if skipped := len(entries) - len(queries); skipped > 0 {
			plan.SkippedSensitive[name] = skipped
		}
		plan.Queries = append(plan.Queries, queries...)
	}

	return plan
}
