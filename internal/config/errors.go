package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrInvalidNum is returned when the per-query result count is outside 1..100.
	ErrInvalidNum = errors.New("invalid result count: must be between 1 and 100")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidDelay is returned when the per-worker delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidTimeout is returned when the HTTP timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBackend is returned for a backend other than auto, api or scrape.
	ErrInvalidBackend = errors.New("invalid backend: must be auto, api or scrape")

	// ErrMissingCredentials is returned when the api backend is forced
	// without both an API key and a search engine id.
	ErrMissingCredentials = errors.New("the api backend needs --google-api-key and --google-cx")

	// ErrConflictingProxy is returned when --proxy is combined with Tor routing.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --proxy cannot be used with --tor or --embedded-tor")

	// ErrInvalidTorPort is returned when the Tor SOCKS port is outside 1..65535.
	ErrInvalidTorPort = errors.New("invalid tor port: must be between 1 and 65535")

	// ErrInvalidMaxBodySize is returned when the snapshot body limit is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrNoDorksFile is returned when no catalog path is configured.
	ErrNoDorksFile = errors.New("no dorks file specified")

	// ErrNoOutputDir is returned when no output directory is configured.
	ErrNoOutputDir = errors.New("no output directory specified")
)
