package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nao1215/dorkscan/internal/model"
)

// Backend executes a single search query.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in results and logs.
	Name() string

	// Search returns at most count results for query, in backend order.
	// When ctx is cancelled the context error is returned unwrapped.
	Search(ctx context.Context, query string, count int) ([]model.ResultItem, error)
}

// Selector chooses between the available backends.
type Selector string

const (
	// SelectorAuto uses the API when credentials exist and scraping otherwise.
	SelectorAuto Selector = "auto"

	// SelectorAPI forces the Google Custom Search API.
	SelectorAPI Selector = "api"

	// SelectorScrape forces DuckDuckGo scraping.
	SelectorScrape Selector = "scrape"
)

// ParseSelector parses a selector name (case-insensitive).
// An empty string selects SelectorAuto.
func ParseSelector(s string) (Selector, error) {
	switch Selector(strings.ToLower(strings.TrimSpace(s))) {
	case "", SelectorAuto:
		return SelectorAuto, nil
	case SelectorAPI:
		return SelectorAPI, nil
	case SelectorScrape:
		return SelectorScrape, nil
	default:
		return "", fmt.Errorf("%w: %q (expected auto, api or scrape)", ErrUnknownSelector, s)
	}
}

// Credentials are the Google Custom Search API credentials.
type Credentials struct {
	APIKey   string
	EngineID string
}

// Complete reports whether both the key and the engine id are set.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.EngineID != ""
}

// Select builds the backend chosen by sel.
func Select(sel Selector, creds Credentials, client *http.Client, opts ...Option) (Backend, error) {
	switch sel {
	case SelectorAPI:
		return NewCSE(client, creds, opts...)
	case SelectorScrape:
		return NewDuckDuckGo(client, opts...), nil
	case SelectorAuto, "":
		if creds.Complete() {
			return NewCSE(client, creds, opts...)
		}
		return NewDuckDuckGo(client, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSelector, sel)
	}
}

// settings holds the options shared by all backends.
type settings struct {
	endpoint string
	logger   *slog.Logger
}

// Option configures a backend.
type Option func(*settings)

// WithEndpoint overrides the backend's base URL.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		s.endpoint = endpoint
	}
}

// WithLogger sets the logger used for per-request debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func newSettings(defaultEndpoint string, opts []Option) settings {
	s := settings{endpoint: defaultEndpoint}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// drain reads and discards the rest of body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody)) //nolint:errcheck // best effort
	_ = body.Close()                                                //nolint:errcheck // best effort
}

// transportError converts a failed request into the error Search returns.
func transportError(ctx context.Context, backend string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &BackendError{Backend: backend, Kind: KindNetworkFailure, Err: err}
}
