package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/productingest/internal/database"
	"github.com/nao1215/productingest/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run reports in Markdown format.
func (w *MarkdownWriter) Write(reports []*model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Ingest Report")
	md.PlainText("")

	t := sumReports(reports)
	w.writeTotals(md, t)
	if t.inserted+t.skipped+t.malformed > 0 {
		w.writePieChart(md, t)
	}
	w.writeAlert(md, t)
	w.writeRuns(md, reports)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, t totals) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Runs", strconv.Itoa(t.runs)},
			{"Found", strconv.Itoa(t.found)},
			{"Inserted", strconv.Itoa(t.inserted)},
			{"Skipped", strconv.Itoa(t.skipped)},
			{"Malformed", strconv.Itoa(t.malformed)},
			{"Persist errors", strconv.Itoa(t.persistErrs)},
			{"Failed pages", strconv.Itoa(t.failedPages)},
		},
	})
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of record outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, t totals) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Record Outcomes"),
		piechart.WithShowData(true),
	)

	if t.inserted > 0 {
		chart.LabelAndIntValue("Inserted", uint64(t.inserted))
	}
	if t.skipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(t.skipped))
	}
	if t.malformed > 0 {
		chart.LabelAndIntValue("Malformed", uint64(t.malformed))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, t totals) {
	switch {
	case t.failedRuns > 0:
		md.Cautionf("%d run(s) ended with an error.", t.failedRuns)
	case t.failedPages > 0:
		md.Warningf("%d page(s) could not be fetched after all retries.", t.failedPages)
	case t.persistErrs > 0:
		md.Importantf("%d record(s) could not be persisted.", t.persistErrs)
	case t.inserted == 0:
		md.Note("No new products were stored.")
	default:
		md.Tip("All runs completed.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeRuns(md *markdown.Markdown, reports []*model.RunReport) {
	md.H2("Runs")
	md.PlainText("")

	if len(reports) == 0 {
		md.PlainText("No runs were executed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(reports))
	for i, r := range reports {
		rows[i] = []string{
			r.Strategy,
			"`" + r.Query + "`",
			status(r),
			strconv.Itoa(len(r.Pages)),
			strconv.Itoa(r.Inserted),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Malformed),
			failedPagesCell(r),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Strategy", "Query", "Status", "Pages", "Inserted", "Skipped", "Malformed", "Failed pages"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range reports {
		if r.Error != "" {
			md.Details(r.Strategy+" "+r.Query, r.Error)
		}
	}
}

func failedPagesCell(r *model.RunReport) string {
	if len(r.FailedPages) == 0 {
		return "-"
	}
	return joinInts(r.FailedPages)
}

// WriteStats outputs the store statistics in Markdown format.
func (w *MarkdownWriter) WriteStats(stats *database.Stats, runs []database.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Store Statistics")
	md.PlainText("")
	md.PlainTextf("Total products: **%d**", stats.Total)
	md.PlainText("")
	if stats.Scope != "" {
		md.PlainTextf("Dedup scope: %s", markdown.Code(string(stats.Scope)))
		md.PlainText("")
	}
	if stats.Rated > 0 {
		md.PlainTextf("Average rating: **%.2f** over %d rated products", stats.AvgRating, stats.Rated)
		md.PlainText("")
	}

	for _, group := range []struct {
		title  string
		counts map[string]int64
	}{
		{"By Source", stats.BySource},
		{"By Category", stats.ByCategory},
		{"By Availability", stats.ByAvailability},
	} {
		if len(group.counts) == 0 {
			continue
		}
		md.H2(group.title)
		md.PlainText("")
		rows := make([][]string, 0, len(group.counts))
		for _, k := range sortedKeys(group.counts) {
			rows = append(rows, []string{k, strconv.FormatInt(group.counts[k], 10)})
		}
		md.Table(markdown.TableSet{Header: []string{"Value", "Products"}, Rows: rows})
		md.PlainText("")
	}

	md.H2("Recent Runs")
	md.PlainText("")
	if len(runs) == 0 {
		md.PlainText("No runs recorded.")
	} else {
		items := make([]string, len(runs))
		for i, r := range runs {
			items[i] = r.StartedAt.Format("2006-01-02 15:04") + " " + r.Summary
		}
		md.BulletList(items...)
	}
	md.PlainText("")
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by productingest*")
}
