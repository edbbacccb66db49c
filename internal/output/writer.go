package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nao1215/dorkscan/internal/model"
)

const (
	// JSONLFile is the JSON Lines result file name.
	JSONLFile = "results.jsonl"

	// CSVFile is the CSV result file name.
	CSVFile = "results.csv"

	// DefaultMaxConsecutiveFailures is the number of consecutive failed
	// writes after which the writer reports itself unavailable.
	DefaultMaxConsecutiveFailures = 3
)

// CSVHeader is the header row of the CSV file.
var CSVHeader = []string{
	"timestamp",
	"category",
	"dork",
	"query",
	"url",
	"domain",
	"title",
	"snippet",
	"backend",
	"status",
	"snapshot_path",
	"sensitive",
	"sensitive_hint",
}

var (
	// ErrWriterUnavailable is returned once writes keep failing.
	// Callers must stop the run when they see it.
	ErrWriterUnavailable = errors.New("result writer unavailable")

	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("result writer is closed")
)

// WriteError is a result that could not be persisted.
type WriteError struct {
	// URL is the result that was being written.
	URL string

	// File is the file that failed, empty when encoding failed.
	File string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("failed to encode result %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to write result %s to %s: %v", e.URL, e.File, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// file is the subset of *os.File the writer needs.
type file interface {
	io.Writer
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Sync() error
	Close() error
	Name() string
}

// Writer appends results to results.jsonl and results.csv.
// It is safe for concurrent use.
type Writer struct {
	mu          sync.Mutex
	dir         string
	jsonl       file
	csv         file
	written     int
	failures    int
	maxFailures int
	closed      bool
	logger      *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithMaxConsecutiveFailures overrides DefaultMaxConsecutiveFailures.
func WithMaxConsecutiveFailures(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxFailures = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// Open creates dir if needed and opens both result files for appending.
// The CSV header is written when the CSV file is new or empty.
func Open(dir string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	w := &Writer{
		dir:         dir,
		maxFailures: DefaultMaxConsecutiveFailures,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	jsonl, err := openAppend(filepath.Join(dir, JSONLFile))
	if err != nil {
		return nil, err
	}
	csvFile, err := openAppend(filepath.Join(dir, CSVFile))
	if err != nil {
		_ = jsonl.Close() //nolint:errcheck // already failing
		return nil, err
	}
	w.jsonl = jsonl
	w.csv = csvFile

	info, err := csvFile.Stat()
	if err != nil {
		_ = w.closeFiles() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to stat %s: %w", csvFile.Name(), err)
	}
	if info.Size() == 0 {
		header, err := encodeCSV(CSVHeader)
		if err == nil {
			_, err = csvFile.Write(header)
		}
		if err != nil {
			_ = w.closeFiles() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	return w, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // output path is supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// JSONLPath returns the path of the JSON Lines file.
func (w *Writer) JSONLPath() string {
	return filepath.Join(w.dir, JSONLFile)
}

// CSVPath returns the path of the CSV file.
func (w *Writer) CSVPath() string {
	return filepath.Join(w.dir, CSVFile)
}

// Write persists item to both files.
//
// A failed write returns *WriteError and leaves both files as they were.
// Once MaxConsecutiveFailures writes in a row have failed, the returned
// error also matches ErrWriterUnavailable.
func (w *Writer) Write(item model.ResultItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &WriteError{URL: item.URL, Err: ErrClosed}
	}

	line, err := encodeJSONL(item)
	if err != nil {
		return w.fail(&WriteError{URL: item.URL, Err: err})
	}
	row, err := encodeCSV(csvRow(item))
	if err != nil {
		return w.fail(&WriteError{URL: item.URL, Err: err})
	}

	jsonlSize, err := size(w.jsonl)
	if err != nil {
		return w.fail(&WriteError{URL: item.URL, File: w.jsonl.Name(), Err: err})
	}
	csvSize, err := size(w.csv)
	if err != nil {
		return w.fail(&WriteError{URL: item.URL, File: w.csv.Name(), Err: err})
	}

	if _, err := w.jsonl.Write(line); err != nil {
		w.rollback(w.jsonl, jsonlSize)
		return w.fail(&WriteError{URL: item.URL, File: w.jsonl.Name(), Err: err})
	}
	if _, err := w.csv.Write(row); err != nil {
		w.rollback(w.csv, csvSize)
		w.rollback(w.jsonl, jsonlSize)
		return w.fail(&WriteError{URL: item.URL, File: w.csv.Name(), Err: err})
	}

	w.failures = 0
	w.written++
	return nil
}

// fail records a failed write and escalates once the limit is reached.
func (w *Writer) fail(we *WriteError) error {
	w.failures++
	w.logger.Warn("result write failed",
		"url", we.URL,
		"consecutive_failures", w.failures,
		"error", we.Err,
	)
	if w.failures >= w.maxFailures {
		return fmt.Errorf("%w after %d consecutive failures: %w", ErrWriterUnavailable, w.failures, we)
	}
	return we
}

func (w *Writer) rollback(f file, to int64) {
	if err := f.Truncate(to); err != nil {
		w.logger.Error("failed to roll back partial write",
			"file", f.Name(),
			"size", to,
			"error", err,
		)
	}
}

// Count returns the number of results written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close syncs and closes both files. Further writes fail with ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeFiles()
}

func (w *Writer) closeFiles() error {
	var errs []error
	for _, f := range []file{w.jsonl, w.csv} {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("failed to sync %s: %w", f.Name(), err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func size(f file) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// record is the JSON Lines layout: the result item plus its domain.
type record struct {
	model.ResultItem
	Domain string `json:"domain"`
}

func encodeJSONL(item model.ResultItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record{ResultItem: item, Domain: item.Domain()}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvRow(item model.ResultItem) []string {
	status := ""
	if item.Status != 0 {
		status = strconv.Itoa(item.Status)
	}
	return []string{
		item.Timestamp.UTC().Format(time.RFC3339),
		item.Category,
		item.Dork,
		item.Query,
		item.URL,
		item.Domain(),
		item.Title,
		item.Snippet,
		item.Backend,
		status,
		item.SnapshotPath,
		strconv.FormatBool(item.Sensitive),
		strconv.FormatBool(item.SensitiveHint),
	}
}

func encodeCSV(row []string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(row); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
