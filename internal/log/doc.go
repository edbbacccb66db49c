// Package log builds the slog loggers used across dorkscan and keeps
// credentials out of their output.
//
// SecureHandler wraps any slog.Handler and rewrites records before they
// reach it:
//   - attributes whose key names a credential (key, cx, cookie, token, ...)
//     are replaced by MaskValue
//   - values that look like API keys, bearer tokens or private keys are
//     replaced by MaskValue
//   - URLs keep their shape but lose the "key" query parameter and any
//     user:password part, so request logs stay useful
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Debug("search", "url", "https://www.googleapis.com/customsearch/v1?key=AIza...&q=x")
//	// url=https://www.googleapis.com/customsearch/v1?key=***REDACTED***&q=x
package log
