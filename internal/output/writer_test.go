package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/dorkscan/internal/model"
)

var errInjected = errors.New("injected write failure")

// flakyFile fails the next failWrites writes. With partial set, half of
// the payload reaches the file before the failure.
type flakyFile struct {
	file
	mu         sync.Mutex
	failWrites int
	partial    bool
}

func (f *flakyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites > 0 {
		f.failWrites--
		if f.partial {
			n, _ := f.file.Write(p[:len(p)/2])
			return n, errInjected
		}
		return 0, errInjected
	}
	return f.file.Write(p)
}

func testItem(i int) model.ResultItem {
	return model.ResultItem{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Category:  "login_panels",
		Dork:      `intitle:"login" site:{domain}`,
		Query:     `intitle:"login" site:example.com`,
		URL:       fmt.Sprintf("https://Example.com/login/%d", i),
		Title:     "Login, please",
		Backend:   model.BackendDuckDuckGo,
		Status:    200,
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	return rows
}

func TestWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes each item to both files", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "out")
		w, err := Open(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.Dir() != dir {
			t.Errorf("expected dir %q, got %q", dir, w.Dir())
		}
		for i := range 3 {
			if err := w.Write(testItem(i)); err != nil {
				t.Fatalf("write %d failed: %v", i, err)
			}
		}
		if w.Count() != 3 {
			t.Errorf("expected count 3, got %d", w.Count())
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		lines := readLines(t, filepath.Join(dir, JSONLFile))
		rows := readCSV(t, filepath.Join(dir, CSVFile))
		if len(lines) != 3 {
			t.Fatalf("expected 3 JSONL lines, got %d", len(lines))
		}
		if len(rows) != 4 {
			t.Fatalf("expected header plus 3 CSV rows, got %d", len(rows))
		}

		var rec map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		if rec["domain"] != "example.com" {
			t.Errorf("expected domain example.com, got %v", rec["domain"])
		}
		if rec["category"] != "login_panels" {
			t.Errorf("expected category login_panels, got %v", rec["category"])
		}

		if rows[0][0] != "timestamp" || len(rows[0]) != len(CSVHeader) {
			t.Errorf("unexpected header %v", rows[0])
		}
		if rows[1][4] != "https://Example.com/login/0" || rows[1][5] != "example.com" {
			t.Errorf("unexpected url/domain columns %v", rows[1][4:6])
		}
		if rows[1][6] != "Login, please" {
			t.Errorf("expected quoted title to round-trip, got %q", rows[1][6])
		}
		if rows[1][9] != "200" || rows[1][11] != "false" {
			t.Errorf("unexpected status/sensitive columns %v", rows[1][9:12])
		}
	})

	t.Run("reopening appends without a second header", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		for i := range 2 {
			w, err := Open(dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := w.Write(testItem(i)); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close failed: %v", err)
			}
		}

		rows := readCSV(t, filepath.Join(dir, CSVFile))
		if len(rows) != 3 {
			t.Fatalf("expected header plus 2 rows, got %d", len(rows))
		}
		if len(readLines(t, filepath.Join(dir, JSONLFile))) != 2 {
			t.Error("expected 2 JSONL lines")
		}
	})

	t.Run("write after close fails", func(t *testing.T) {
		t.Parallel()

		w, err := Open(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Errorf("second close should be a no-op, got %v", err)
		}
		if err := w.Write(testItem(0)); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})

	t.Run("unwritable directory fails to open", func(t *testing.T) {
		t.Parallel()

		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, nil, 0o600); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if _, err := Open(filepath.Join(blocker, "out")); err == nil {
			t.Error("expected error when output dir is below a regular file")
		}
	})
}

func TestWriterAtomicity(t *testing.T) {
	t.Parallel()

	t.Run("failed CSV append rolls back the JSONL line", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		w, err := Open(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Close()

		if err := w.Write(testItem(0)); err != nil {
			t.Fatalf("first write failed: %v", err)
		}

		w.csv = &flakyFile{file: w.csv, failWrites: 1, partial: true}
		err = w.Write(testItem(1))

		var we *WriteError
		if !errors.As(err, &we) {
			t.Fatalf("expected *WriteError, got %v", err)
		}
		if !errors.Is(err, errInjected) {
			t.Errorf("expected injected cause, got %v", err)
		}
		if errors.Is(err, ErrWriterUnavailable) {
			t.Error("a single failure should not mark the writer unavailable")
		}

		if err := w.Write(testItem(2)); err != nil {
			t.Fatalf("write after recovery failed: %v", err)
		}

		lines := readLines(t, filepath.Join(dir, JSONLFile))
		rows := readCSV(t, filepath.Join(dir, CSVFile))
		if len(lines) != 2 || len(rows)-1 != 2 {
			t.Fatalf("expected 2 records in each file, got %d JSONL and %d CSV", len(lines), len(rows)-1)
		}
		if rows[2][4] != "https://Example.com/login/2" {
			t.Errorf("unexpected surviving row %v", rows[2])
		}
		if w.Count() != 2 {
			t.Errorf("expected count 2, got %d", w.Count())
		}
	})

	t.Run("failed JSONL append writes nothing", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		w, err := Open(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Close()

		w.jsonl = &flakyFile{file: w.jsonl, failWrites: 1, partial: true}
		if err := w.Write(testItem(0)); err == nil {
			t.Fatal("expected write error")
		}

		if n := len(readLines(t, filepath.Join(dir, JSONLFile))); n != 0 {
			t.Errorf("expected empty JSONL file, got %d lines", n)
		}
		if n := len(readCSV(t, filepath.Join(dir, CSVFile))); n != 1 {
			t.Errorf("expected only the CSV header, got %d rows", n)
		}
	})

	t.Run("consecutive failures escalate", func(t *testing.T) {
		t.Parallel()

		w, err := Open(t.TempDir(), WithMaxConsecutiveFailures(3))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Close()

		flaky := &flakyFile{file: w.csv, failWrites: 2}
		w.csv = flaky

		for i := range 2 {
			if err := w.Write(testItem(i)); errors.Is(err, ErrWriterUnavailable) || err == nil {
				t.Fatalf("write %d: expected plain write error, got %v", i, err)
			}
		}
		if err := w.Write(testItem(2)); err != nil {
			t.Fatalf("expected success to reset the failure count, got %v", err)
		}

		flaky.mu.Lock()
		flaky.failWrites = 3
		flaky.mu.Unlock()
		var last error
		for i := range 3 {
			last = w.Write(testItem(10 + i))
		}
		if !errors.Is(last, ErrWriterUnavailable) {
			t.Fatalf("expected ErrWriterUnavailable, got %v", last)
		}
		var we *WriteError
		if !errors.As(last, &we) {
			t.Error("expected the escalated error to carry the WriteError")
		}
	})
}

func TestWriterConcurrentWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := w.Write(testItem(i)); err != nil {
				t.Errorf("write %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if got := len(readLines(t, filepath.Join(dir, JSONLFile))); got != n {
		t.Errorf("expected %d JSONL lines, got %d", n, got)
	}
	if got := len(readCSV(t, filepath.Join(dir, CSVFile))) - 1; got != n {
		t.Errorf("expected %d CSV rows, got %d", n, got)
	}
}
