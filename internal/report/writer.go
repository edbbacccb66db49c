package report

import (
	"io"

	"github.com/nao1215/dorkscan/internal/analyze"
	"github.com/nao1215/dorkscan/internal/model"
)

// DefaultTop is the number of domains shown when no limit is given.
const DefaultTop = 10

// Writer defines the interface for summary output.
type Writer interface {
	// Write renders the summary and returns the number of bytes written.
	Write(summary *model.Summary) (int, error)
}

// Option configures a writer.
type Option func(*baseWriter)

// WithTop limits the number of domains listed. A non-positive n lists all.
func WithTop(n int) Option {
	return func(w *baseWriter) {
		w.top = n
	}
}

// WithDetails appends the per-record listing to the report.
func WithDetails(records []analyze.Record) Option {
	return func(w *baseWriter) {
		w.records = records
	}
}

// WithColor enables ANSI colors in the text writer.
func WithColor(enabled bool) Option {
	return func(w *baseWriter) {
		w.color = enabled
	}
}

// WithPrettyPrint indents JSON output.
func WithPrettyPrint() Option {
	return func(w *baseWriter) {
		w.indent = "  "
	}
}

// MultiWriter writes the same summary to several Writers, stopping at the
// first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
func (m *MultiWriter) Write(summary *model.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter holds the settings shared by every writer.
type baseWriter struct {
	output  io.Writer
	top     int
	records []analyze.Record
	color   bool
	indent  string
}

func newBaseWriter(output io.Writer, opts []Option) baseWriter {
	w := baseWriter{
		output: output,
		top:    DefaultTop,
	}
	for _, opt := range opts {
		opt(&w)
	}
	return w
}

// domains returns the domain rows to display.
func (w *baseWriter) domains(summary *model.Summary) []model.DomainCount {
	return summary.Top(w.top)
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
