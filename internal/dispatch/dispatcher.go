package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/dorkscan/internal/model"
	"github.com/nao1215/dorkscan/internal/output"
	"github.com/nao1215/dorkscan/internal/search"
	"github.com/nao1215/dorkscan/internal/snapshot"
)

const (
	// DefaultConcurrency is the default number of workers.
	DefaultConcurrency = 6

	// DefaultDelay is the default per-worker pause between queries.
	DefaultDelay = 1500 * time.Millisecond

	// DefaultCount is the default number of results requested per query.
	DefaultCount = 5
)

// Sink receives every new result item. Write must be safe for concurrent use.
// An error matching output.ErrWriterUnavailable aborts the run.
type Sink interface {
	Write(item model.ResultItem) error
}

// Capturer saves the page behind a result.
type Capturer interface {
	Capture(ctx context.Context, url string) (*model.Snapshot, error)
}

// Failure is a query that produced no results because the backend failed.
type Failure struct {
	Query   model.Query
	Backend string
	Kind    search.Kind
	Status  int
	Err     error
	Time    time.Time
}

// QueryResult is passed to the OnQueryDone hook.
type QueryResult struct {
	Query      model.Query
	Items      int
	Duplicates int
	Err        error
}

// Report summarizes a run.
type Report struct {
	// Queries is the number of queries handed to Run.
	Queries int

	// Attempted is the number of queries sent to the backend.
	Attempted int

	// Items are the persisted results in completion order.
	Items []model.ResultItem

	// Failures are the queries that failed.
	Failures []Failure

	// Duplicates counts results dropped because their URL was already seen.
	Duplicates int

	// WriteErrors counts results the sink failed to persist.
	WriteErrors int

	// SnapshotErrors counts results whose page could not be captured.
	SnapshotErrors int

	Started  time.Time
	Finished time.Time
}

// BackendUnreachable reports whether at least one query was attempted and
// every attempted query failed with a network failure.
func (r *Report) BackendUnreachable() bool {
	if r.Attempted == 0 || len(r.Failures) != r.Attempted {
		return false
	}
	for _, f := range r.Failures {
		if f.Kind != search.KindNetworkFailure {
			return false
		}
	}
	return true
}

// FailuresByKind counts failures per kind.
func (r *Report) FailuresByKind() map[search.Kind]int {
	counts := make(map[search.Kind]int)
	for _, f := range r.Failures {
		counts[f.Kind]++
	}
	return counts
}

// Dispatcher executes queries with bounded concurrency and per-worker pacing.
type Dispatcher struct {
	backend     search.Backend
	sink        Sink
	capturer    Capturer
	concurrency int
	delay       time.Duration
	count       int
	logger      *slog.Logger
	onStart     func(model.Query)
	onDone      func(QueryResult)

	mu     sync.Mutex
	seen   map[string]struct{}
	report *Report
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency sets the number of workers. Non-positive values are ignored.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithDelay sets the minimum interval between two queries of the same worker.
// Zero disables pacing.
func WithDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay >= 0 {
			d.delay = delay
		}
	}
}

// WithCount sets the number of results requested per query.
func WithCount(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.count = n
		}
	}
}

// WithCapturer enables snapshots of every new result.
func WithCapturer(c Capturer) Option {
	return func(d *Dispatcher) {
		d.capturer = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// OnQueryStart registers a hook called when a worker sends a query.
// Hooks run on worker goroutines and must be safe for concurrent use.
func OnQueryStart(fn func(model.Query)) Option {
	return func(d *Dispatcher) {
		d.onStart = fn
	}
}

// OnQueryDone registers a hook called when a query has been fully processed.
func OnQueryDone(fn func(QueryResult)) Option {
	return func(d *Dispatcher) {
		d.onDone = fn
	}
}

// New creates a Dispatcher that sends queries to backend and results to sink.
func New(backend search.Backend, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:     backend,
		sink:        sink,
		concurrency: DefaultConcurrency,
		delay:       DefaultDelay,
		count:       DefaultCount,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Run dispatches queries and blocks until all are processed, the sink
// becomes unavailable, or ctx is cancelled. The report is returned in
// every case; on cancellation it is partial and the error is ctx.Err().
func (d *Dispatcher) Run(ctx context.Context, queries []model.Query) (*Report, error) {
	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.report = &Report{Queries: len(queries), Started: time.Now()}
	report := d.report
	d.mu.Unlock()

	d.logger.Info("dispatch started",
		"queries", len(queries),
		"backend", d.backend.Name(),
		"concurrency", d.concurrency,
		"delay", d.delay,
	)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan model.Query)

	g.Go(func() error {
		defer close(jobs)
		for _, q := range queries {
			select {
			case jobs <- q:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	workers := min(d.concurrency, max(len(queries), 1))
	for i := range workers {
		g.Go(func() error {
			return d.worker(gctx, i, jobs)
		})
	}

	err := g.Wait()

	d.mu.Lock()
	report.Finished = time.Now()
	d.mu.Unlock()

	d.logger.Info("dispatch finished",
		"attempted", report.Attempted,
		"items", len(report.Items),
		"failures", len(report.Failures),
		"elapsed", report.Finished.Sub(report.Started),
	)

	if err != nil {
		return report, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, ctxErr
	}
	return report, nil
}

func (d *Dispatcher) worker(ctx context.Context, id int, jobs <-chan model.Query) error {
	var limiter *rate.Limiter
	if d.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(d.delay), 1)
	}

	for q := range jobs {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := d.runQuery(ctx, id, q); err != nil {
			return err
		}
	}
	return nil
}

// runQuery executes one query. It only returns an error when the run must stop.
func (d *Dispatcher) runQuery(ctx context.Context, worker int, q model.Query) error {
	if d.onStart != nil {
		d.onStart(q)
	}
	d.logger.Debug("query dispatched", "worker", worker, "category", q.Category, "query", q.Text)

	items, err := d.backend.Search(ctx, q.Text, d.count)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted: the query yields nothing and is not a failure.
			return nil
		}
		d.recordFailure(q, err)
		d.done(QueryResult{Query: q, Err: err})
		return nil
	}

	d.mu.Lock()
	d.report.Attempted++
	d.mu.Unlock()

	res := QueryResult{Query: q}
	for _, item := range items {
		if res.Items >= d.count {
			break
		}
		if !d.markSeen(item.URL) {
			res.Duplicates++
			continue
		}

		item = item.WithQuery(q)
		if d.capturer != nil {
			item = d.capture(ctx, item)
		}

		if err := d.sink.Write(item); err != nil {
			if errors.Is(err, output.ErrWriterUnavailable) {
				return err
			}
			d.logger.Warn("result not persisted", "url", item.URL, "error", err)
			d.mu.Lock()
			d.report.WriteErrors++
			// A later query may still persist the URL.
			delete(d.seen, item.URL)
			d.mu.Unlock()
			continue
		}

		d.mu.Lock()
		d.report.Items = append(d.report.Items, item)
		d.mu.Unlock()
		res.Items++
	}

	d.mu.Lock()
	d.report.Duplicates += res.Duplicates
	d.mu.Unlock()

	d.done(res)
	return nil
}

func (d *Dispatcher) capture(ctx context.Context, item model.ResultItem) model.ResultItem {
	snap, err := d.capturer.Capture(ctx, item.URL)
	if err == nil {
		return item.WithSnapshot(snap)
	}

	var se *snapshot.Error
	if errors.As(err, &se) && se.Status != 0 {
		item.Status = se.Status
	}
	if ctx.Err() == nil {
		d.logger.Warn("snapshot failed", "url", item.URL, "error", err)
		d.mu.Lock()
		d.report.SnapshotErrors++
		d.mu.Unlock()
	}
	return item
}

func (d *Dispatcher) recordFailure(q model.Query, err error) {
	f := Failure{
		Query:   q,
		Backend: d.backend.Name(),
		Kind:    search.KindNetworkFailure,
		Err:     err,
		Time:    time.Now(),
	}
	var be *search.BackendError
	if errors.As(err, &be) {
		f.Kind = be.Kind
		f.Status = be.Status
		f.Backend = be.Backend
	}

	d.logger.Warn("query failed",
		"category", q.Category,
		"query", q.Text,
		"kind", f.Kind,
		"error", err,
	)

	d.mu.Lock()
	d.report.Attempted++
	d.report.Failures = append(d.report.Failures, f)
	d.mu.Unlock()
}

func (d *Dispatcher) markSeen(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[url]; ok {
		return false
	}
	d.seen[url] = struct{}{}
	return true
}

func (d *Dispatcher) done(res QueryResult) {
	if d.onDone != nil {
		d.onDone(res)
	}
}
