// Package dispatch runs dork queries against a search backend with a fixed
// pool of workers.
//
// Each worker paces itself: it waits until the configured delay has
// passed since its own previous query before sending the next one. A
// failing query is recorded and the run continues; only an unavailable
// result writer or cancellation ends a run early.
package dispatch
