package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/productingest/internal/database"
	"github.com/nao1215/productingest/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is embedded in ingest output when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in ingest output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// IngestReport is the JSON document written after an ingest invocation.
type IngestReport struct {
	Version string             `json:"version,omitempty"`
	Runs    []*model.RunReport `json:"runs"`
	Totals  Totals             `json:"totals"`
}

// Totals are the counters summed over all runs.
type Totals struct {
	Runs          int `json:"runs"`
	Found         int `json:"found"`
	Inserted      int `json:"inserted"`
	Skipped       int `json:"skipped"`
	Malformed     int `json:"malformed"`
	PersistErrors int `json:"persist_errors"`
	FailedPages   int `json:"failed_pages"`
	FailedRuns    int `json:"failed_runs"`
}

// StatsReport is the JSON document written by the stats command.
type StatsReport struct {
	Stats *database.Stats       `json:"stats"`
	Runs  []database.RunSummary `json:"runs"`
}

// Write outputs the run reports with their totals.
func (w *JSONWriter) Write(reports []*model.RunReport) (int, error) {
	if reports == nil {
		reports = []*model.RunReport{}
	}
	t := sumReports(reports)
	return w.writeJSON(IngestReport{
		Version: w.version,
		Runs:    reports,
		Totals: Totals{
			Runs:          t.runs,
			Found:         t.found,
			Inserted:      t.inserted,
			Skipped:       t.skipped,
			Malformed:     t.malformed,
			PersistErrors: t.persistErrs,
			FailedPages:   t.failedPages,
			FailedRuns:    t.failedRuns,
		},
	})
}

// WriteStats outputs the store statistics and recent runs.
func (w *JSONWriter) WriteStats(stats *database.Stats, runs []database.RunSummary) (int, error) {
	if runs == nil {
		runs = []database.RunSummary{}
	}
	return w.writeJSON(StatsReport{Stats: stats, Runs: runs})
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
