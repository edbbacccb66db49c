package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/dorkscan/internal/model"
	"github.com/nao1215/dorkscan/internal/output"
	"github.com/nao1215/dorkscan/internal/search"
	"github.com/nao1215/dorkscan/internal/snapshot"
)

// fakeBackend returns canned results keyed by query text.
type fakeBackend struct {
	results map[string][]string
	errs    map[string]error
	block   chan struct{}
	calls   atomic.Int32
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Search(ctx context.Context, query string, count int) ([]model.ResultItem, error) {
	b.calls.Add(1)
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := b.errs[query]; ok {
		return nil, err
	}
	var items []model.ResultItem
	for _, u := range b.results[query] {
		if len(items) == count {
			break
		}
		items = append(items, model.NewResultItem(model.Query{Text: query}, b.Name(), u, "t", ""))
	}
	return items, nil
}

// memorySink collects items in memory.
type memorySink struct {
	mu    sync.Mutex
	items []model.ResultItem
	err   error
}

func (s *memorySink) Write(item model.ResultItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, item)
	return nil
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// failOnceSink rejects the first write and accepts the rest.
type failOnceSink struct {
	memorySink
	failed atomic.Bool
}

func (s *failOnceSink) Write(item model.ResultItem) error {
	if s.failed.CompareAndSwap(false, true) {
		return &output.WriteError{URL: item.URL, Err: errors.New("transient")}
	}
	return s.memorySink.Write(item)
}

// gatedBackend holds every call until limit calls are in flight at once,
// then until release is closed, and records the peak number of calls.
type gatedBackend struct {
	limit    int32
	inFlight atomic.Int32
	peak     atomic.Int32
	reached  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (b *gatedBackend) Name() string { return "gated" }

func (b *gatedBackend) Search(ctx context.Context, _ string, _ int) ([]model.ResultItem, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if n >= b.limit {
		b.once.Do(func() { close(b.reached) })
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func queries(texts ...string) []model.Query {
	qs := make([]model.Query, 0, len(texts))
	for _, t := range texts {
		qs = append(qs, model.Query{Category: "cat-" + t, Template: t, Text: t})
	}
	return qs
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("uses defaults", func(t *testing.T) {
		t.Parallel()
		d := New(&fakeBackend{}, &memorySink{})
		if d.concurrency != DefaultConcurrency || d.delay != DefaultDelay || d.count != DefaultCount {
			t.Errorf("unexpected defaults: %d %v %d", d.concurrency, d.delay, d.count)
		}
		if d.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("ignores invalid values", func(t *testing.T) {
		t.Parallel()
		d := New(&fakeBackend{}, &memorySink{}, WithConcurrency(0), WithDelay(-time.Second), WithCount(-1))
		if d.concurrency != DefaultConcurrency || d.delay != DefaultDelay || d.count != DefaultCount {
			t.Errorf("invalid options should keep defaults: %d %v %d", d.concurrency, d.delay, d.count)
		}
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("persists results attributed to their query", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{results: map[string][]string{
			"a": {"https://a.example/1", "https://a.example/2"},
			"b": {"https://b.example/1"},
		}}
		sink := &memorySink{}
		d := New(backend, sink, WithDelay(0), WithConcurrency(2))

		report, err := d.Run(context.Background(), queries("a", "b"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Items) != 3 || sink.len() != 3 {
			t.Fatalf("expected 3 items, got report=%d sink=%d", len(report.Items), sink.len())
		}
		if report.Attempted != 2 || len(report.Failures) != 0 {
			t.Errorf("expected 2 attempted and no failures, got %d/%d", report.Attempted, len(report.Failures))
		}
		for _, it := range report.Items {
			if it.Category != "cat-"+it.Query {
				t.Errorf("item %s attributed to %q", it.URL, it.Category)
			}
		}
	})

	t.Run("preserves backend order within a query", func(t *testing.T) {
		t.Parallel()

		urls := []string{"https://x/1", "https://x/2", "https://x/3", "https://x/4"}
		backend := &fakeBackend{results: map[string][]string{"q": urls}}
		sink := &memorySink{}
		d := New(backend, sink, WithDelay(0), WithCount(10))

		if _, err := d.Run(context.Background(), queries("q")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, it := range sink.items {
			if it.URL != urls[i] {
				t.Errorf("position %d: expected %s, got %s", i, urls[i], it.URL)
			}
		}
	})

	t.Run("rate-limited query is recorded and the rest continue", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{
			results: map[string][]string{
				"a": {"https://a.example/"},
				"c": {"https://c.example/"},
			},
			errs: map[string]error{
				"b": &search.BackendError{Backend: "fake", Kind: search.KindRateLimited, Status: 429, Err: errors.New("slow down")},
			},
		}
		sink := &memorySink{}
		d := New(backend, sink, WithDelay(0), WithConcurrency(3))

		report, err := d.Run(context.Background(), queries("a", "b", "c"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sink.len() != 2 {
			t.Errorf("expected 2 persisted items, got %d", sink.len())
		}
		if len(report.Failures) != 1 {
			t.Fatalf("expected 1 failure, got %d", len(report.Failures))
		}
		f := report.Failures[0]
		if f.Query.Text != "b" || f.Kind != search.KindRateLimited || f.Status != 429 {
			t.Errorf("unexpected failure %+v", f)
		}
		if report.BackendUnreachable() {
			t.Error("backend should not be reported unreachable")
		}
		if report.FailuresByKind()[search.KindRateLimited] != 1 {
			t.Errorf("unexpected failure counts %v", report.FailuresByKind())
		}
	})

	t.Run("duplicate URLs across queries are skipped", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{results: map[string][]string{
			"a": {"https://dup.example/", "https://a.example/"},
			"b": {"https://dup.example/", "https://b.example/"},
		}}
		sink := &memorySink{}
		d := New(backend, sink, WithDelay(0), WithConcurrency(1))

		report, err := d.Run(context.Background(), queries("a", "b"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sink.len() != 3 {
			t.Errorf("expected 3 unique items, got %d", sink.len())
		}
		if report.Duplicates != 1 {
			t.Errorf("expected 1 duplicate, got %d", report.Duplicates)
		}
	})

	t.Run("count limits results per query", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{results: map[string][]string{
			"a": {"https://a/1", "https://a/2", "https://a/3"},
		}}
		sink := &memorySink{}
		d := New(backend, sink, WithDelay(0), WithCount(2))

		if _, err := d.Run(context.Background(), queries("a")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sink.len() != 2 {
			t.Errorf("expected 2 items, got %d", sink.len())
		}
	})

	t.Run("no queries completes immediately", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{}
		report, err := New(backend, &memorySink{}).Run(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Queries != 0 || backend.calls.Load() != 0 {
			t.Errorf("expected no work, got %+v", report)
		}
	})
}

func TestRunFailures(t *testing.T) {
	t.Parallel()

	t.Run("every network failure marks the backend unreachable", func(t *testing.T) {
		t.Parallel()

		netErr := &search.BackendError{Backend: "fake", Kind: search.KindNetworkFailure, Err: errors.New("refused")}
		backend := &fakeBackend{errs: map[string]error{"a": netErr, "b": netErr}}
		d := New(backend, &memorySink{}, WithDelay(0))

		report, err := d.Run(context.Background(), queries("a", "b"))
		if err != nil {
			t.Fatalf("per-query failures should not fail the run: %v", err)
		}
		if !report.BackendUnreachable() {
			t.Error("expected backend to be reported unreachable")
		}
	})

	t.Run("unavailable writer aborts the run", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{results: map[string][]string{"a": {"https://a/"}}}
		sink := &memorySink{err: fmt.Errorf("%w: disk full", output.ErrWriterUnavailable)}
		d := New(backend, sink, WithDelay(0))

		report, err := d.Run(context.Background(), queries("a"))
		if !errors.Is(err, output.ErrWriterUnavailable) {
			t.Fatalf("expected ErrWriterUnavailable, got %v", err)
		}
		if report == nil {
			t.Fatal("expected a report even on failure")
		}
	})

	t.Run("single write error is counted and the run continues", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{results: map[string][]string{"a": {"https://a/"}}}
		sink := &memorySink{err: &output.WriteError{URL: "https://a/", Err: errors.New("transient")}}
		d := New(backend, sink, WithDelay(0))

		report, err := d.Run(context.Background(), queries("a"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.WriteErrors != 1 || len(report.Items) != 0 {
			t.Errorf("expected 1 write error and no items, got %d/%d", report.WriteErrors, len(report.Items))
		}
	})

	t.Run("url of a failed write can be persisted by a later query", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{results: map[string][]string{
			"a": {"https://shared.example/"},
			"b": {"https://shared.example/"},
		}}
		sink := &failOnceSink{}
		d := New(backend, sink, WithDelay(0), WithConcurrency(1))

		report, err := d.Run(context.Background(), queries("a", "b"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.WriteErrors != 1 {
			t.Errorf("expected 1 write error, got %d", report.WriteErrors)
		}
		if report.Duplicates != 0 {
			t.Errorf("expected no duplicates, got %d", report.Duplicates)
		}
		if len(report.Items) != 1 || report.Items[0].Query != "b" {
			t.Fatalf("expected the URL persisted for query b, got %+v", report.Items)
		}
	})

	t.Run("cancellation returns a partial report", func(t *testing.T) {
		t.Parallel()

		backend := &fakeBackend{
			results: map[string][]string{"a": {"https://a/"}, "b": {"https://b/"}},
			block:   make(chan struct{}),
		}
		sink := &memorySink{}
		started := make(chan struct{}, 2)
		d := New(backend, sink, WithDelay(0), WithConcurrency(2), OnQueryStart(func(model.Query) {
			started <- struct{}{}
		}))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()

		report, err := d.Run(ctx, queries("a", "b"))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(report.Items) != 0 || len(report.Failures) != 0 {
			t.Errorf("interrupted queries should yield nothing, got %d items, %d failures", len(report.Items), len(report.Failures))
		}
	})
}

func TestRunConcurrencyBound(t *testing.T) {
	t.Parallel()

	const workers = 3
	backend := &gatedBackend{limit: workers, reached: make(chan struct{}), release: make(chan struct{})}
	d := New(backend, &memorySink{}, WithDelay(0), WithConcurrency(workers))

	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := d.Run(context.Background(), queries("a", "b", "c", "d", "e", "f", "g", "h", "i", "j"))
		done <- result{report, err}
	}()

	select {
	case <-backend.reached:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected %d queries in flight, peak was %d", workers, backend.peak.Load())
	}
	close(backend.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	if res.report.Attempted != 10 {
		t.Errorf("expected 10 attempted queries, got %d", res.report.Attempted)
	}
	if peak := backend.peak.Load(); peak != workers {
		t.Errorf("expected at most %d queries in flight, got %d", workers, peak)
	}
}

func TestRunPacing(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{results: map[string][]string{}}
	d := New(backend, &memorySink{}, WithConcurrency(1), WithDelay(50*time.Millisecond))

	start := time.Now()
	if _, err := d.Run(context.Background(), queries("a", "b", "c")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("expected at least two delays between three queries, took %v", elapsed)
	}
}

func TestRunHooks(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		results: map[string][]string{"a": {"https://a/1", "https://a/2"}},
		errs:    map[string]error{"b": errors.New("boom")},
	}

	var started atomic.Int32
	var mu sync.Mutex
	done := make(map[string]QueryResult)
	d := New(backend, &memorySink{}, WithDelay(0),
		OnQueryStart(func(model.Query) { started.Add(1) }),
		OnQueryDone(func(r QueryResult) {
			mu.Lock()
			done[r.Query.Text] = r
			mu.Unlock()
		}),
	)

	if _, err := d.Run(context.Background(), queries("a", "b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started.Load() != 2 {
		t.Errorf("expected 2 start hooks, got %d", started.Load())
	}
	if done["a"].Items != 2 || done["a"].Err != nil {
		t.Errorf("unexpected result for a: %+v", done["a"])
	}
	if done["b"].Err == nil {
		t.Error("expected error for b")
	}
}

// fakeCapturer returns snapshots for URLs in ok and errors for the rest.
type fakeCapturer struct {
	ok map[string]bool
}

func (c *fakeCapturer) Capture(_ context.Context, url string) (*model.Snapshot, error) {
	if c.ok[url] {
		return &model.Snapshot{URL: url, Path: "/tmp/" + url, Status: 200, Title: "page", SensitiveHint: true}, nil
	}
	return nil, &snapshot.Error{URL: url, Status: 404, Err: snapshot.ErrHTTPStatus}
}

func TestRunSnapshots(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{results: map[string][]string{"a": {"https://ok/", "https://missing/"}}}
	sink := &memorySink{}
	d := New(backend, sink, WithDelay(0), WithCapturer(&fakeCapturer{ok: map[string]bool{"https://ok/": true}}))

	report, err := d.Run(context.Background(), queries("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.len() != 2 {
		t.Fatalf("failed snapshots must not drop items, got %d", sink.len())
	}
	if report.SnapshotErrors != 1 {
		t.Errorf("expected 1 snapshot error, got %d", report.SnapshotErrors)
	}

	byURL := make(map[string]model.ResultItem)
	for _, it := range sink.items {
		byURL[it.URL] = it
	}
	if got := byURL["https://ok/"]; got.SnapshotPath == "" || !got.SensitiveHint || got.Status != 200 {
		t.Errorf("snapshot data not attached: %+v", got)
	}
	if got := byURL["https://missing/"]; got.SnapshotPath != "" || got.Status != 404 {
		t.Errorf("failed snapshot should keep item without path: %+v", got)
	}
}
