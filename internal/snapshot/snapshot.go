package snapshot

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/dorkscan/internal/model"
)

// DirName is the subdirectory of the output directory holding snapshots.
const DirName = "snapshots"

// DefaultMaxBodySize bounds the bytes read from a single page.
const DefaultMaxBodySize int64 = 5 * 1024 * 1024

// sensitivePattern matches credential-looking content.
var sensitivePattern = regexp.MustCompile(`(?i)(password|passwd|pwd|aws_access_key_id|aws_secret_access_key|private key|BEGIN PRIVATE KEY|api_key|access_token)`)

// ErrHTTPStatus is wrapped when the page answered with a non-2xx status.
var ErrHTTPStatus = errors.New("unexpected HTTP status")

// Error is a failed capture. Captures are best effort: the result item
// is kept without snapshot data.
type Error struct {
	// URL is the page that could not be captured.
	URL string

	// Status is the HTTP status, 0 when no response was received.
	Status int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Fetcher downloads and stores result pages.
type Fetcher struct {
	client      *http.Client
	dir         string
	maxBodySize int64
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxBodySize overrides DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher writing into <outputDir>/snapshots,
// creating the directory if needed.
func NewFetcher(client *http.Client, outputDir string, opts ...Option) (*Fetcher, error) {
	dir := filepath.Join(outputDir, DirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	f := &Fetcher{
		client:      client,
		dir:         dir,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f, nil
}

// Dir returns the snapshot directory.
func (f *Fetcher) Dir() string {
	return f.dir
}

// FileName returns the snapshot file name for a URL: the first 16 bytes of
// its SHA3-256 hash, hex encoded, with an .html extension.
func FileName(rawURL string) string {
	sum := sha3.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:16]) + ".html"
}

// Capture fetches rawURL and stores its body.
func (f *Fetcher) Capture(ctx context.Context, rawURL string) (*model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBodySize)) //nolint:errcheck // draining
		return nil, &Error{
			URL:    rawURL,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, &Error{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	path := filepath.Join(f.dir, FileName(rawURL))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return nil, &Error{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("failed to write snapshot: %w", err)}
	}

	snap := &model.Snapshot{
		URL:           rawURL,
		Path:          path,
		Status:        resp.StatusCode,
		Title:         extractTitle(body),
		SensitiveHint: ContainsSensitive(body),
	}

	f.logger.Debug("snapshot saved",
		"url", rawURL,
		"path", path,
		"status", snap.Status,
		"bytes", len(body),
		"sensitive_hint", snap.SensitiveHint,
	)
	return snap, nil
}

// ContainsSensitive reports whether body matches the credential pattern.
func ContainsSensitive(body []byte) bool {
	return sensitivePattern.Match(body)
}

func extractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}
