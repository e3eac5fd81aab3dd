package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/productingest/internal/config"
	"github.com/nao1215/productingest/internal/database"
	"github.com/nao1215/productingest/internal/report"
)

func productSlot(id string) string {
	return fmt.Sprintf(`{"slotType":"WIDGET","widget":{"type":"PRODUCT_SUMMARY","data":{"products":[{"productInfo":{"value":`+
		`{"id":%q,"titles":{"title":"Phone %s"},"baseUrl":"/p/%s","vertical":"MOBILES",`+
		`"media":{"images":[{"url":"http://img/{@width}/%s.jpg"}]}}}}]}}}`, id, id, id, id)
}

// fakeSite serves a search page and an API endpoint. Page n carries product
// "P<n>" plus "SHARED", which appears on every page.
type fakeSite struct {
	server      *httptest.Server
	searchCalls atomic.Int32
	apiCalls    atomic.Int32

	// failPage makes the search page return 503 for that page.
	failPage string
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()

	site := &fakeSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		site.searchCalls.Add(1)
		page := r.URL.Query().Get("page")
		if page == site.failPage {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		state := `{"pageDataV4":{"page":{"data":{"10001":[` + productSlot("P"+page) + `,` + productSlot("SHARED") + `]}}}}`
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><script id="is_script">window.__INITIAL_STATE__ = `+state+`;</script></head><body></body></html>`)
	})
	mux.HandleFunc("/api/4/page/fetch", func(w http.ResponseWriter, r *http.Request) {
		site.apiCalls.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			PageURI string `json:"pageUri"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"RESPONSE":{"slots":[`+productSlot("API1")+`]}}`)
	})
	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

// writeTestConfig writes a config file pointing every endpoint at site.
func writeTestConfig(t *testing.T, site *fakeSite) string {
	t.Helper()

	content := fmt.Sprintf(`site:
  baseURL: %[1]s/
  searchURL: %[1]s/search
  apiURL: %[1]s/api/4/page/fetch
pageDelay: 0s
retry:
  attempts: 2
  delay: 0s
`, site.server.URL)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeIngestReport(t *testing.T, output string) report.IngestReport {
	t.Helper()

	var got report.IngestReport
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, output)
	}
	return got
}

func TestIngestCmd(t *testing.T) {
	t.Parallel()

	t.Run("html strategy walks pages and stores each product once", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(t)
		dbDir := t.TempDir()
		args := []string{"ingest", "--config", writeTestConfig(t, site), "--db-dir", dbDir,
			"--pages", "3", "--json", "Mobile Phones"}

		output, err := execute(t, args...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := decodeIngestReport(t, output)
		if len(got.Runs) != 1 || got.Runs[0].Strategy != "html" {
			t.Fatalf("expected one html run, got %+v", got.Runs)
		}
		// P1, P2, P3 and SHARED once; SHARED skipped on pages 2 and 3.
		if got.Totals.Inserted != 4 || got.Totals.Skipped != 2 {
			t.Errorf("unexpected totals %+v", got.Totals)
		}
		if site.searchCalls.Load() != 3 {
			t.Errorf("expected 3 search requests, got %d", site.searchCalls.Load())
		}

		// A second run stores nothing new.
		output, err = execute(t, args...)
		if err != nil {
			t.Fatalf("unexpected error on rerun: %v", err)
		}
		if again := decodeIngestReport(t, output); again.Totals.Inserted != 0 || again.Totals.Skipped != 6 {
			t.Errorf("expected rerun to skip everything, got %+v", again.Totals)
		}

		store, err := database.OpenSQLite(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer store.Close()

		p, err := store.Get(t.Context(), "flipkart", "P2")
		if err != nil || p == nil {
			t.Fatalf("expected stored product, got %v %v", p, err)
		}
		if p.URL != site.server.URL+"/p/P2" || len(p.Media) != 1 || p.Media[0] != "http://img/416/P2.jpg" {
			t.Errorf("unexpected stored product %+v", p)
		}
		runs, err := store.ListRuns(t.Context(), 10)
		if err != nil || len(runs) != 2 {
			t.Errorf("expected two saved runs, got %d %v", len(runs), err)
		}
	})

	t.Run("both strategies run api first", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(t)
		output, err := execute(t, "ingest", "--config", writeTestConfig(t, site), "--db-dir", t.TempDir(),
			"--strategy", "both", "--no-pagination", "--json", "Mobile Phones")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := decodeIngestReport(t, output)
		if len(got.Runs) != 2 || got.Runs[0].Strategy != "api" || got.Runs[1].Strategy != "html" {
			t.Fatalf("expected api then html, got %+v", got.Runs)
		}
		if got.Runs[0].Inserted != 1 || got.Runs[1].Inserted != 2 {
			t.Errorf("unexpected inserts api=%d html=%d", got.Runs[0].Inserted, got.Runs[1].Inserted)
		}
		if site.apiCalls.Load() != 1 || site.searchCalls.Load() != 1 {
			t.Errorf("expected one request per strategy, got api=%d search=%d", site.apiCalls.Load(), site.searchCalls.Load())
		}
	})

	t.Run("failed page is reported and the run continues", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(t)
		site.failPage = "2"
		output, err := execute(t, "ingest", "--config", writeTestConfig(t, site), "--db-dir", t.TempDir(),
			"--pages", "3", "--json", "Mobile Phones")
		if !errors.Is(err, errIncompleteRuns) {
			t.Fatalf("expected errIncompleteRuns, got %v", err)
		}

		run := decodeIngestReport(t, output).Runs[0]
		if len(run.FailedPages) != 1 || run.FailedPages[0] != 2 {
			t.Errorf("expected page 2 to fail, got %v", run.FailedPages)
		}
		if run.Inserted != 3 {
			t.Errorf("expected pages 1 and 3 to persist 3 products, got %d", run.Inserted)
		}
	})

	t.Run("fail fast returns an error after writing the report", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(t)
		site.failPage = "1"
		output, err := execute(t, "ingest", "--config", writeTestConfig(t, site), "--db-dir", t.TempDir(),
			"--pages", "3", "--fail-fast", "--json", "Mobile Phones")
		if err == nil {
			t.Fatal("expected error with fail-fast")
		}
		if got := decodeIngestReport(t, output); got.Totals.FailedRuns != 1 {
			t.Errorf("expected one failed run, got %+v", got.Totals)
		}
		if site.searchCalls.Load() != 2 {
			t.Errorf("expected 2 attempts on page 1 only, got %d", site.searchCalls.Load())
		}
	})

	t.Run("writes report to file", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(t)
		reportPath := filepath.Join(t.TempDir(), "reports", "run.md")
		if _, err := execute(t, "ingest", "--config", writeTestConfig(t, site), "--db-dir", t.TempDir(),
			"--no-pagination", "--markdown", "--output", reportPath, "Mobile Phones"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("expected report file: %v", err)
		}
		if !strings.Contains(string(content), "# Ingest Report") {
			t.Errorf("unexpected report content %s", content)
		}
	})

	t.Run("tee prints a text summary next to the report file", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(t)
		reportPath := filepath.Join(t.TempDir(), "run.json")
		output, err := execute(t, "ingest", "--config", writeTestConfig(t, site), "--db-dir", t.TempDir(),
			"--no-pagination", "--json", "--output", reportPath, "--tee", "Mobile Phones")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "INGEST REPORT") || !strings.Contains(output, "Inserted: 2") {
			t.Errorf("expected text summary on stdout, got %s", output)
		}

		content, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("expected report file: %v", err)
		}
		if got := decodeIngestReport(t, string(content)); got.Totals.Inserted != 2 {
			t.Errorf("unexpected file totals %+v", got.Totals)
		}
	})

	t.Run("store keeps the dedup scope it was created with", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(t)
		cfgPath := writeTestConfig(t, site)
		dbDir := t.TempDir()
		if _, err := execute(t, "ingest", "--config", cfgPath, "--db-dir", dbDir,
			"--dedup-scope", "source", "--no-pagination", "--json", "Mobile Phones"); err != nil {
			t.Fatalf("ingest failed: %v", err)
		}

		_, err := execute(t, "ingest", "--config", cfgPath, "--db-dir", dbDir, "--no-pagination", "Mobile Phones")
		if !errors.Is(err, database.ErrInvalidDedupScope) {
			t.Errorf("expected ErrInvalidDedupScope for a scope switch, got %v", err)
		}

		output, err := execute(t, "stats", "--config", cfgPath, "--db-dir", dbDir, "--json")
		if err != nil {
			t.Fatalf("stats on a source-scope store failed: %v", err)
		}
		var got report.StatsReport
		if err := json.Unmarshal([]byte(output), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, output)
		}
		if got.Stats.Scope != database.ScopeSource || got.Stats.Total != 2 {
			t.Errorf("unexpected stats %+v", got.Stats)
		}
	})
}

func TestIngestCmdConfigErrors(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	cfgPath := writeTestConfig(t, site)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "no query",
			args: []string{"ingest", "--config", cfgPath, "--db-dir", t.TempDir()},
			want: config.ErrNoQuery.Error(),
		},
		{
			name: "invalid strategy",
			args: []string{"ingest", "--config", cfgPath, "--db-dir", t.TempDir(), "--strategy", "browser", "q"},
			want: config.ErrInvalidStrategy.Error(),
		},
		{
			name: "conflicting formats",
			args: []string{"ingest", "--config", cfgPath, "--db-dir", t.TempDir(), "--json", "--markdown", "q"},
			want: config.ErrConflictingReportFormats.Error(),
		},
		{
			name: "postgres without dsn",
			args: []string{"ingest", "--config", cfgPath, "--store", "postgres", "q"},
			want: config.ErrMissingPostgresDSN.Error(),
		},
		{
			name: "missing config file",
			args: []string{"ingest", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "q"},
			want: config.ErrConfigNotFound.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestStatsCmd(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	cfgPath := writeTestConfig(t, site)
	dbDir := t.TempDir()

	if _, err := execute(t, "ingest", "--config", cfgPath, "--db-dir", dbDir, "--no-pagination", "--json", "Mobile Phones"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	// Subtests share one database file and run sequentially.
	t.Run("json", func(t *testing.T) {
		output, err := execute(t, "stats", "--config", cfgPath, "--db-dir", dbDir, "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got report.StatsReport
		if err := json.Unmarshal([]byte(output), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, output)
		}
		if got.Stats.Total != 2 || got.Stats.ByCategory["MOBILES"] != 2 {
			t.Errorf("unexpected stats %+v", got.Stats)
		}
		if len(got.Runs) != 1 || got.Runs[0].Query != "Mobile Phones" {
			t.Errorf("unexpected runs %+v", got.Runs)
		}
	})

	t.Run("text", func(t *testing.T) {
		output, err := execute(t, "stats", "--config", cfgPath, "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "Total products: 2") {
			t.Errorf("unexpected output %s", output)
		}
	})

	t.Run("invalid runs", func(t *testing.T) {
		if _, err := execute(t, "stats", "--config", cfgPath, "--db-dir", dbDir, "--runs", "0"); err == nil {
			t.Error("expected error for --runs 0")
		}
	})
}
