package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/dorkscan/internal/analyze"
	"github.com/nao1215/dorkscan/internal/model"
)

// JSONWriter outputs summaries as a single JSON document.
type JSONWriter struct {
	baseWriter
	version string
}

// JSONReport is the document written by JSONWriter.
type JSONReport struct {
	// Version is the dorkscan version that produced the document.
	Version string `json:"version,omitempty"`

	// Summary holds the aggregate counts. TopDomains is limited by WithTop.
	Summary *model.Summary `json:"summary"`

	// Records is present only when details were requested.
	Records []analyze.Record `json:"records,omitempty"`
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, version string, opts ...Option) *JSONWriter {
	return &JSONWriter{
		baseWriter: newBaseWriter(output, opts),
		version:    version,
	}
}

// Write outputs the summary in JSON format.
func (w *JSONWriter) Write(summary *model.Summary) (int, error) {
	limited := *summary
	limited.TopDomains = w.domains(summary)

	doc := JSONReport{
		Version: w.version,
		Summary: &limited,
		Records: w.records,
	}

	var (
		data []byte
		err  error
	)
	if w.indent != "" {
		data, err = json.MarshalIndent(doc, "", w.indent)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')

	return w.output.Write(data)
}
