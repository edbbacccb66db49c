package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/nao1215/dorkscan/internal/analyze"
	"github.com/nao1215/dorkscan/internal/model"
)

// SimpleWriter outputs human-readable text summaries for terminal display.
type SimpleWriter struct {
	baseWriter

	heading   *color.Color
	alert     *color.Color
	highlight *color.Color
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
// Colors are off unless WithColor(true) is passed.
func NewSimpleWriter(output io.Writer, opts ...Option) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output, opts),
		heading:    color.New(color.FgCyan, color.Bold),
		alert:      color.New(color.FgRed, color.Bold),
		highlight:  color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{w.heading, w.alert, w.highlight} {
		if w.color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCategories(&sb, summary)
	w.writeDomains(&sb, summary)
	if len(w.records) > 0 {
		w.writeDetails(&sb)
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(w.heading.Sprint(title))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(w.heading.Sprint("DORKSCAN RESULT SUMMARY"))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	if summary.Source != "" {
		fmt.Fprintf(sb, "Source:           %s\n", summary.Source)
	}
	fmt.Fprintf(sb, "Total results:    %d\n", summary.Total)
	if summary.HasSensitive() {
		fmt.Fprintf(sb, "Sensitive found:  %s\n", w.alert.Sprintf("YES (%d)", summary.SensitiveCount))
	} else {
		sb.WriteString("Sensitive found:  no\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCategories(sb *strings.Builder, summary *model.Summary) {
	w.section(sb, "RESULTS PER CATEGORY")
	if len(summary.Categories) == 0 {
		sb.WriteString("  No categories\n\n")
		return
	}
	for _, c := range summary.Categories {
		fmt.Fprintf(sb, "  %-30s %d\n", c.Category, c.Count)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDomains(sb *strings.Builder, summary *model.Summary) {
	domains := w.domains(summary)
	w.section(sb, fmt.Sprintf("TOP DOMAINS (%d of %d)", len(domains), len(summary.TopDomains)))
	if len(domains) == 0 {
		sb.WriteString("  No domains\n\n")
		return
	}
	for i, d := range domains {
		fmt.Fprintf(sb, "  %2d. %-40s %d\n", i+1, d.Domain, d.Count)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDetails(sb *strings.Builder) {
	w.section(sb, "DETAILED RESULTS")
	for _, r := range w.records {
		line := fmt.Sprintf("  [%s] %s\n      %s\n", r.Category, r.Dork, r.URL)
		if r.IsSensitive() {
			line = w.highlight.Sprint(line)
			sb.WriteString(line)
			sb.WriteString(w.alert.Sprint("      ! sensitive"))
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(line)
	}
	sb.WriteString("\n")
}

// recordTitle returns the record title or "-" when it has none.
func recordTitle(r analyze.Record) string {
	if r.Title == "" {
		return "-"
	}
	return r.Title
}
