package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/dorkscan/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MarkdownWriter outputs summaries as a Markdown document.
type MarkdownWriter struct {
	baseWriter
	title cases.Caser
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...Option) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output, opts),
		title:      cases.Title(language.English),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeCategories(md, summary)
	w.writeDomains(md, summary)
	if len(w.records) > 0 {
		w.writeDetails(md)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// CategoryLabel turns a category key such as "login_panels" into "Login Panels".
func (w *MarkdownWriter) CategoryLabel(category string) string {
	return w.title.String(strings.ReplaceAll(category, "_", " "))
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.Summary) {
	md.H1("Dorkscan Result Summary")
	md.PlainText("")

	rows := [][]string{
		{"Total Results", strconv.Itoa(summary.Total)},
		{"Categories", strconv.Itoa(len(summary.Categories))},
		{"Distinct Domains", strconv.Itoa(len(summary.TopDomains))},
		{"Sensitive Results", strconv.Itoa(summary.SensitiveCount)},
	}
	if summary.Source != "" {
		rows = append([][]string{{"Source", "`" + summary.Source + "`"}}, rows...)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if summary.HasSensitive() {
		md.Warningf("%d result(s) came from sensitive dorks or matched a credential pattern. Review them before sharing this report.",
			summary.SensitiveCount)
	} else {
		md.Note("No sensitive results were found.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeCategories(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Results per Category")
	md.PlainText("")

	if len(summary.Categories) == 0 {
		md.PlainText("No results.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Categories))
	for i, c := range summary.Categories {
		rows[i] = []string{w.CategoryLabel(c.Category), "`" + c.Category + "`", strconv.Itoa(c.Count)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Key", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Results per Category"),
		piechart.WithShowData(true),
	)
	for _, c := range summary.Categories {
		chart.LabelAndIntValue(w.CategoryLabel(c.Category), uint64(c.Count)) //nolint:gosec // counts are never negative
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeDomains(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Top Domains")
	md.PlainText("")

	domains := w.domains(summary)
	if len(domains) == 0 {
		md.PlainText("No domains.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(domains))
	for i, d := range domains {
		rows[i] = []string{strconv.Itoa(i + 1), d.Domain, strconv.Itoa(d.Count)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Domain", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeDetails(md *markdown.Markdown) {
	md.H2("Detailed Results")
	md.PlainText("")

	rows := make([][]string, len(w.records))
	for i, r := range w.records {
		flag := ""
		if r.IsSensitive() {
			flag = "⚠️"
		}
		rows[i] = []string{
			r.Category,
			truncateString(r.Dork, 50),
			truncateString(r.URL, 80),
			truncateString(recordTitle(r), 50),
			flag,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Dork", "URL", "Title", "Sensitive"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by dorkscan*")
}
