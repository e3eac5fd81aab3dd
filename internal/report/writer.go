package report

import (
	"cmp"
	"io"
	"slices"

	"github.com/nao1215/productingest/internal/database"
	"github.com/nao1215/productingest/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the reports of one ingest invocation.
	// Returns the number of bytes written and any error encountered.
	Write(reports []*model.RunReport) (int, error)

	// WriteStats outputs store statistics and the most recent runs.
	WriteStats(stats *database.Stats, runs []database.RunSummary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the reports to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(reports []*model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteStats outputs the statistics to all configured Writers.
func (m *MultiWriter) WriteStats(stats *database.Stats, runs []database.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteStats(stats, runs)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// totals sums the counters of several runs.
type totals struct {
	runs        int
	found       int
	inserted    int
	skipped     int
	malformed   int
	persistErrs int
	failedPages int
	failedRuns  int
}

func sumReports(reports []*model.RunReport) totals {
	t := totals{runs: len(reports)}
	for _, r := range reports {
		t.found += r.Found
		t.inserted += r.Inserted
		t.skipped += r.Skipped
		t.malformed += r.Malformed
		t.persistErrs += r.PersistErrors
		t.failedPages += len(r.FailedPages)
		if r.Error != "" {
			t.failedRuns++
		}
	}
	return t
}

// status returns a short status word for a run.
func status(r *model.RunReport) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Error != "":
		return "failed"
	case len(r.FailedPages) > 0:
		return "partial"
	default:
		return "complete"
	}
}

// sortedKeys returns the keys of counts ordered by descending count, then name.
func sortedKeys[V cmp.Ordered](counts map[string]V) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return keys
}
