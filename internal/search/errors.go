package search

import (
	"errors"
	"fmt"
)

// Kind classifies a backend failure.
type Kind string

const (
	// KindRateLimited means the backend throttled or blocked the request.
	KindRateLimited Kind = "rate-limited"

	// KindUnauthorized means the credentials were rejected.
	KindUnauthorized Kind = "unauthorized"

	// KindNetworkFailure means the backend could not be reached.
	KindNetworkFailure Kind = "network-failure"

	// KindParseFailure means the response did not have the expected layout.
	KindParseFailure Kind = "parse-failure"

	// KindQuotaExceeded means the daily API quota is exhausted.
	KindQuotaExceeded Kind = "quota-exceeded"

	// KindBadRequest means the backend rejected the query itself.
	KindBadRequest Kind = "bad-request"
)

var (
	// ErrMissingCredentials is returned when the API backend is requested
	// without an API key and search engine id.
	ErrMissingCredentials = errors.New("google custom search requires an API key and a search engine id")

	// ErrUnknownSelector is returned for backend selectors other than
	// auto, api and scrape.
	ErrUnknownSelector = errors.New("unknown backend selector")
)

// BackendError is a failed search call.
type BackendError struct {
	// Backend is the name of the failing backend.
	Backend string

	// Kind classifies the failure.
	Kind Kind

	// Status is the HTTP status code, 0 when no response was received.
	Status int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Backend, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a *BackendError anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return "", false
}
