package analyze

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/dorkscan/internal/model"
	"github.com/nao1215/dorkscan/internal/output"
)

// UnknownCategory is used for records without a category.
const UnknownCategory = "unknown"

var (
	// ErrNoRecords is returned when the input holds no recognizable records.
	ErrNoRecords = errors.New("no result records found")

	// ErrNoResultFile is returned when a directory contains neither result file.
	ErrNoResultFile = errors.New("no results.jsonl or results.csv found")

	// ErrUnsupportedFormat is returned for files that are neither JSONL nor CSV.
	ErrUnsupportedFormat = errors.New("unsupported result file format")
)

// Error is a failed analysis.
type Error struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Record is one result as read back from disk.
type Record struct {
	Category      string `json:"category"`
	Dork          string `json:"dork"`
	URL           string `json:"url"`
	Domain        string `json:"domain"`
	Title         string `json:"title,omitempty"`
	Sensitive     bool   `json:"sensitive"`
	SensitiveHint bool   `json:"sensitive_hint"`
}

// IsSensitive reports whether the record came from a sensitive dork or
// its page matched the credential pattern.
func (r Record) IsSensitive() bool {
	return r.Sensitive || r.SensitiveHint
}

// Analyze reads the result set at path and summarizes it.
func Analyze(path string) (*model.Summary, error) {
	file, records, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := Summarize(records)
	s.Source = file
	return s, nil
}

// Load resolves path to a result file and reads its records.
// It returns the resolved file path alongside the records.
func Load(path string) (string, []Record, error) {
	file, err := Resolve(path)
	if err != nil {
		return "", nil, &Error{Path: path, Err: err}
	}

	f, err := os.Open(file) //nolint:gosec // path is supplied by the user
	if err != nil {
		return "", nil, &Error{Path: file, Err: err}
	}
	defer f.Close()

	var records []Record
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		records, err = readCSV(f)
	default:
		records, err = readJSONL(f)
	}
	if err != nil {
		return "", nil, &Error{Path: file, Err: err}
	}
	if len(records) == 0 {
		return "", nil, &Error{Path: file, Err: ErrNoRecords}
	}
	return file, records, nil
}

// Resolve maps a directory to its result file (JSONL first, then CSV) and
// checks that a file path has a supported extension.
func Resolve(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if info.IsDir() {
		for _, name := range []string{output.JSONLFile, output.CSVFile} {
			candidate := filepath.Join(path, name)
			if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
				return candidate, nil
			}
		}
		return "", ErrNoResultFile
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json", ".ndjson", ".csv":
		return path, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// jsonRecord accepts both the current layout and the older one where
// flags may be strings and timestamps are numbers.
type jsonRecord struct {
	Category      *string         `json:"category"`
	Dork          string          `json:"dork"`
	URL           string          `json:"url"`
	Domain        string          `json:"domain"`
	Title         json.RawMessage `json:"title"`
	Sensitive     json.RawMessage `json:"sensitive"`
	SensitiveHint json.RawMessage `json:"sensitive_hint"`
}

func readJSONL(r io.Reader) ([]Record, error) {
	var records []Record

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var jr jsonRecord
			// Malformed lines are skipped.
			if jerr := json.Unmarshal(line, &jr); jerr == nil {
				records = append(records, fromJSON(jr))
			}
		}
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func fromJSON(jr jsonRecord) Record {
	rec := Record{
		Dork:          jr.Dork,
		URL:           jr.URL,
		Title:         rawString(jr.Title),
		Sensitive:     rawBool(jr.Sensitive),
		SensitiveHint: rawBool(jr.SensitiveHint),
	}
	if jr.Category != nil {
		rec.Category = *jr.Category
	}
	rec.Category = normalizeCategory(rec.Category)
	rec.Domain = domainOf(rec.URL, jr.Domain)
	return rec
}

func readCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := index["url"]; !ok {
		if _, ok := index["category"]; !ok {
			return nil, fmt.Errorf("%w: CSV header has neither url nor category column", ErrUnsupportedFormat)
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, err
		}

		url := strings.TrimSpace(field(row, "url"))
		rec := Record{
			Category:      normalizeCategory(field(row, "category")),
			Dork:          field(row, "dork"),
			URL:           url,
			Title:         field(row, "title"),
			Sensitive:     parseBool(field(row, "sensitive")),
			SensitiveHint: parseBool(field(row, "sensitive_hint")),
		}
		rec.Domain = domainOf(url, field(row, "domain"))
		records = append(records, rec)
	}
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return UnknownCategory
	}
	return c
}

func domainOf(url, stored string) string {
	if d := model.DomainOf(url); d != "" {
		return d
	}
	return strings.ToLower(strings.TrimSpace(stored))
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func rawBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseBool(s)
	}
	return false
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// Summarize computes the summary of already loaded records.
func Summarize(records []Record) *model.Summary {
	s := &model.Summary{
		Total:            len(records),
		CountPerCategory: make(map[string]int),
		Categories:       []model.CategoryCount{},
		TopDomains:       []model.DomainCount{},
	}

	var categoryOrder, domainOrder []string
	domains := make(map[string]int)

	for _, r := range records {
		if _, ok := s.CountPerCategory[r.Category]; !ok {
			categoryOrder = append(categoryOrder, r.Category)
		}
		s.CountPerCategory[r.Category]++

		if r.IsSensitive() {
			s.SensitiveCount++
		}

		if r.Domain != "" {
			if _, ok := domains[r.Domain]; !ok {
				domainOrder = append(domainOrder, r.Domain)
			}
			domains[r.Domain]++
		}
	}
	s.SensitiveFound = s.SensitiveCount > 0

	for _, c := range categoryOrder {
		s.Categories = append(s.Categories, model.CategoryCount{Category: c, Count: s.CountPerCategory[c]})
	}
	// Stable sort keeps first-seen order among equal counts.
	sort.SliceStable(s.Categories, func(i, j int) bool {
		return s.Categories[i].Count > s.Categories[j].Count
	})

	for _, d := range domainOrder {
		s.TopDomains = append(s.TopDomains, model.DomainCount{Domain: d, Count: domains[d]})
	}
	sort.SliceStable(s.TopDomains, func(i, j int) bool {
		return s.TopDomains[i].Count > s.TopDomains[j].Count
	})

	return s
}
