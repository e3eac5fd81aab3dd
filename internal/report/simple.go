package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/productingest/internal/database"
	"github.com/nao1215/productingest/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds the per-page breakdown of every run.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-page breakdown.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run reports in human-readable format.
func (w *SimpleWriter) Write(reports []*model.RunReport) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "INGEST REPORT")

	if len(reports) == 0 {
		sb.WriteString("No runs were executed.\n")
		return w.output.Write([]byte(sb.String()))
	}

	for _, r := range reports {
		w.writeRun(&sb, r)
	}

	t := sumReports(reports)
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Runs: %d  Found: %d  Inserted: %d  Skipped: %d  Malformed: %d\n",
		t.runs, t.found, t.inserted, t.skipped, t.malformed))
	if t.persistErrs > 0 || t.failedPages > 0 || t.failedRuns > 0 {
		sb.WriteString(fmt.Sprintf("Persist errors: %d  Failed pages: %d  Failed runs: %d\n",
			t.persistErrs, t.failedPages, t.failedRuns))
	}

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeRun(sb *strings.Builder, r *model.RunReport) {
	sb.WriteString(fmt.Sprintf("[%s] %q (%s)\n", r.Strategy, r.Query, status(r)))
	sb.WriteString(fmt.Sprintf("  Run ID:     %s\n", r.RunID))
	sb.WriteString(fmt.Sprintf("  Started:    %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("  Duration:   %s\n", r.Duration().Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("  Pages:      %d of %d\n", len(r.Pages), r.MaxPages))
	sb.WriteString(fmt.Sprintf("  Found:      %d\n", r.Found))
	sb.WriteString(fmt.Sprintf("  Inserted:   %d\n", r.Inserted))
	sb.WriteString(fmt.Sprintf("  Skipped:    %d\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("  Malformed:  %d\n", r.Malformed))
	if r.PersistErrors > 0 {
		sb.WriteString(fmt.Sprintf("  Persist errors: %d\n", r.PersistErrors))
	}
	if len(r.FailedPages) > 0 {
		sb.WriteString(fmt.Sprintf("  Failed pages:   %s\n", joinInts(r.FailedPages)))
	}
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("  Error:      %s\n", r.Error))
	}

	if w.verbose {
		for _, p := range r.Pages {
			sb.WriteString(fmt.Sprintf("    page %2d: found=%d inserted=%d skipped=%d malformed=%d",
				p.Page, p.Found, p.Inserted, p.Skipped, p.Malformed))
			switch {
			case p.FetchError != "":
				sb.WriteString(" fetch_error=" + p.FetchError)
			case p.ExtractionError != "":
				sb.WriteString(" extraction_error=" + p.ExtractionError)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}

// WriteStats outputs the store statistics in human-readable format.
func (w *SimpleWriter) WriteStats(stats *database.Stats, runs []database.RunSummary) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "STORE STATISTICS")

	sb.WriteString(fmt.Sprintf("Total products: %d\n", stats.Total))
	if stats.Scope != "" {
		sb.WriteString(fmt.Sprintf("Dedup scope:    %s\n", stats.Scope))
	}
	if stats.Rated > 0 {
		sb.WriteString(fmt.Sprintf("Avg rating:     %.2f (%d rated)\n", stats.AvgRating, stats.Rated))
	}
	if !stats.LatestUpdate.IsZero() {
		sb.WriteString(fmt.Sprintf("Latest update:  %s\n", stats.LatestUpdate.Format("2006-01-02 15:04:05 MST")))
	}

	writeCounts(&sb, "By source", stats.BySource)
	writeCounts(&sb, "By category", stats.ByCategory)
	writeCounts(&sb, "By availability", stats.ByAvailability)

	sb.WriteString("\nRecent runs:\n")
	if len(runs) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("  %s  %s\n", r.StartedAt.Format("2006-01-02 15:04"), r.Summary))
	}

	return w.output.Write([]byte(sb.String()))
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(" ", (70-len(title))/2))
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	sb.WriteString("\n" + title + ":\n")
	for _, k := range sortedKeys(counts) {
		name := k
		if name == "" {
			name = "(unknown)"
		}
		sb.WriteString(fmt.Sprintf("  %-30s %d\n", name, counts[k]))
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
