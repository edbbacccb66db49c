package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/dorkscan/internal/model"
)

// DefaultFile is the catalog file name looked up when none is given.
const DefaultFile = "dorks.yaml"

// Category is one named group of dork entries.
type Category struct {
	// Name is the category key in the catalog file.
	Name string

	// Description is free text from the catalog, empty for list categories.
	Description string

	// Risk is the declared risk level of the category.
	Risk model.Risk

	// Sensitive is true when the category is gated as a whole.
	Sensitive bool

	// Entries are the dork entries in file order.
	Entries []model.DorkEntry
}

// SensitiveCount returns the number of sensitive entries in the category.
func (c *Category) SensitiveCount() int {
	n := 0
	for _, e := range c.Entries {
		if e.Sensitive {
			n++
		}
	}
	return n
}

// Catalog is an immutable, ordered collection of categories.
type Catalog struct {
	path       string
	order      []string
	categories map[string]*Category
}

// Load reads and parses the catalog file at path.
// Any failure, including a missing file, is reported as *Error.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // catalog path is supplied by the user
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	c, err := parse(data)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Path = path
			return nil, ce
		}
		return nil, &Error{Path: path, Err: err}
	}
	c.path = path
	return c, nil
}

// Parse parses a catalog document held in memory.
func Parse(data []byte) (*Catalog, error) {
	return parse(data)
}

// Path returns the file the catalog was loaded from.
func (c *Catalog) Path() string {
	return c.path
}

// Categories returns the category names in file order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Entries returns the entries of a category, or nil for an unknown name.
func (c *Catalog) Entries(name string) []model.DorkEntry {
	cat, ok := c.categories[name]
	if !ok {
		return nil
	}
	out := make([]model.DorkEntry, len(cat.Entries))
	copy(out, cat.Entries)
	return out
}

// Category returns the named category.
func (c *Catalog) Category(name string) (*Category, bool) {
	cat, ok := c.categories[name]
	return cat, ok
}

// Has reports whether the catalog defines the named category.
func (c *Catalog) Has(name string) bool {
	_, ok := c.categories[name]
	return ok
}

// Len returns the total number of entries across all categories.
func (c *Catalog) Len() int {
	n := 0
	for _, cat := range c.categories {
		n += len(cat.Entries)
	}
	return n
}

// categoryDoc is the metadata layout of a category.
type categoryDoc struct {
	Description string    `yaml:"description"`
	Risk        string    `yaml:"risk"`
	Sensitive   bool      `yaml:"sensitive"`
	Dorks       yaml.Node `yaml:"dorks"`
}

// entryDoc is the mapping layout of a single entry.
type entryDoc struct {
	Template  string `yaml:"template"`
	Sensitive bool   `yaml:"sensitive"`
}

func parse(data []byte) (*Catalog, error) {
	c := &Catalog{categories: make(map[string]*Category)}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Err: err}
	}

	// An empty document is an empty catalog.
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return c, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return c, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, &Error{Err: fmt.Errorf("%w: top level must map category names to dorks", ErrInvalidShape)}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		name := strings.TrimSpace(root.Content[i].Value)
		if name == "" {
			return nil, &Error{Err: fmt.Errorf("%w: empty category name at line %d", ErrInvalidShape, root.Content[i].Line)}
		}
		if _, dup := c.categories[name]; dup {
			return nil, &Error{Category: name, Err: fmt.Errorf("%w: duplicate category", ErrInvalidShape)}
		}

		cat, err := parseCategory(name, root.Content[i+1])
		if err != nil {
			return nil, &Error{Category: name, Err: err}
		}
		c.order = append(c.order, name)
		c.categories[name] = cat
	}

	return c, nil
}

func parseCategory(name string, node *yaml.Node) (*Category, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) == 1 && node.Content[0].Kind == yaml.MappingNode && hasKey(node.Content[0], "dorks") {
			return parseCategoryDoc(name, node.Content[0])
		}
		entries, err := parseEntries(name, node, false)
		if err != nil {
			return nil, err
		}
		return &Category{Name: name, Entries: entries}, nil
	case yaml.MappingNode:
		return parseCategoryDoc(name, node)
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return &Category{Name: name}, nil
		}
	}
	return nil, fmt.Errorf("%w: category must be a list or a mapping (line %d)", ErrInvalidShape, node.Line)
}

func parseCategoryDoc(name string, node *yaml.Node) (*Category, error) {
	if !hasKey(node, "dorks") {
		return nil, fmt.Errorf("%w: category mapping has no dorks list (line %d)", ErrInvalidShape, node.Line)
	}

	var doc categoryDoc
	if err := node.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShape, err)
	}

	risk, ok := model.ParseRisk(doc.Risk)
	if !ok {
		// Catalogs converted from dorks.json use "unknown" for undeclared levels.
		if !strings.EqualFold(strings.TrimSpace(doc.Risk), "unknown") {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRisk, doc.Risk)
		}
	}

	cat := &Category{
		Name:        name,
		Description: strings.TrimSpace(doc.Description),
		Risk:        risk,
		Sensitive:   doc.Sensitive || risk.Sensitive(),
	}

	switch {
	case doc.Dorks.Kind == yaml.SequenceNode:
		entries, err := parseEntries(name, &doc.Dorks, cat.Sensitive)
		if err != nil {
			return nil, err
		}
		cat.Entries = entries
	case doc.Dorks.Kind == yaml.ScalarNode && doc.Dorks.Tag == "!!null":
	default:
		return nil, fmt.Errorf("%w: dorks must be a list (line %d)", ErrInvalidShape, doc.Dorks.Line)
	}

	return cat, nil
}

func parseEntries(category string, node *yaml.Node, sensitive bool) ([]model.DorkEntry, error) {
	entries := make([]model.DorkEntry, 0, len(node.Content))
	for _, item := range node.Content {
		entry := model.DorkEntry{Category: category, Sensitive: sensitive}

		switch item.Kind {
		case yaml.ScalarNode:
			if item.Tag != "!!null" {
				entry.Template = strings.TrimSpace(item.Value)
			}
			if entry.Template == "" {
				return nil, fmt.Errorf("%w (line %d)", ErrMissingTemplate, item.Line)
			}
		case yaml.MappingNode:
			var doc entryDoc
			if err := item.Decode(&doc); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidShape, err)
			}
			entry.Template = strings.TrimSpace(doc.Template)
			if entry.Template == "" {
				return nil, fmt.Errorf("%w (line %d)", ErrMissingTemplate, item.Line)
			}
			entry.Sensitive = entry.Sensitive || doc.Sensitive
		default:
			return nil, fmt.Errorf("%w: entry must be a string or a mapping (line %d)", ErrInvalidShape, item.Line)
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
