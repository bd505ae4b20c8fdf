package runner

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maxvaer/apiprobe/internal/config"
	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/store"
)

func writeDictionary(t *testing.T, words []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.txt")
	if err := os.WriteFile(path, []byte(strings.Join(words, "\n")), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOpts(t *testing.T, serverURL, dictPath string) *config.Options {
	t.Helper()
	return &config.Options{
		URL:          serverURL,
		Dictionary:   dictPath,
		Concurrency:  2,
		Timeout:      5 * time.Second,
		UserAgents:   []string{"apiprobe-test"},
		Fallback:     "record",
		Quiet:        true,
		NoColor:      true,
		LogLevel:     "error",
		OutputFile:   filepath.Join(t.TempDir(), "output.txt"),
		OutputFormat: "text",
	}
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin":
			fmt.Fprint(w, `{"owner":"root@example.com"}`)
		case "/login":
			fmt.Fprint(w, "login page")
		case "/internal":
			w.WriteHeader(http.StatusForbidden)
		case "/crash":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBasicScan(t *testing.T) {
	srv := apiServer(t)
	dict := writeDictionary(t, []string{"admin", "login", "internal", "notexist"})
	opts := testOpts(t, srv.URL, dict)

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	out := readOutput(t, opts.OutputFile)
	if !strings.Contains(out, "/admin") || !strings.Contains(out, "root@example.com") {
		t.Errorf("expected /admin with its finding in output:\n%s", out)
	}
	if !strings.Contains(out, "/internal") {
		t.Error("expected forbidden /internal in output")
	}
	if strings.Contains(out, "/login") {
		t.Error("clean 200 should not be written")
	}
	if strings.Contains(out, "/notexist") {
		t.Error("unexpected /notexist in output")
	}
}

func TestJSONReport(t *testing.T) {
	srv := apiServer(t)
	dict := writeDictionary(t, []string{"admin", "login", "internal", "crash", "notexist"})
	opts := testOpts(t, srv.URL, dict)
	opts.OutputFormat = "json"
	opts.OutputFile = filepath.Join(t.TempDir(), "reports", "scan_report.json")

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	var doc report.Document
	if err := json.Unmarshal([]byte(readOutput(t, opts.OutputFile)), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.BasicResults) != 1 || doc.BasicResults[0].Path != "admin" {
		t.Errorf("basic_results = %+v", doc.BasicResults)
	}
	if len(doc.SensitiveFindings) != 1 || doc.SensitiveFindings[0].MatchedText != "root@example.com" {
		t.Errorf("sensitive_findings = %+v", doc.SensitiveFindings)
	}
	if doc.ErrorCount != 1 {
		t.Errorf("error_count = %d, want 1", doc.ErrorCount)
	}
	if len(doc.ForbiddenURLs) != 1 || doc.ForbiddenURLs[0] != srv.URL+"/internal" {
		t.Errorf("forbidden_urls = %v", doc.ForbiddenURLs)
	}
	if doc.ScanConfig.PathsScanned != 5 || doc.Stats.Processed != 5 {
		t.Errorf("paths scanned = %d, processed = %d", doc.ScanConfig.PathsScanned, doc.Stats.Processed)
	}
}

func TestCSVReport(t *testing.T) {
	srv := apiServer(t)
	dict := writeDictionary(t, []string{"admin", "internal"})
	opts := testOpts(t, srv.URL, dict)
	opts.OutputFormat = "csv"
	opts.OutputFile = filepath.Join(t.TempDir(), "findings.csv")

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(opts.OutputFile)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Header, one finding row for /admin, one row for /internal.
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
}

func TestStrictFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "no")
	}))
	defer srv.Close()

	dict := writeDictionary(t, []string{"users"})
	for _, tt := range []struct {
		fallback string
		want     int
	}{
		{"record", 1},
		{"strict", 0},
	} {
		t.Run(tt.fallback, func(t *testing.T) {
			opts := testOpts(t, srv.URL, dict)
			opts.Fallback = tt.fallback
			opts.OutputFormat = "json"
			if err := Run(context.Background(), opts); err != nil {
				t.Fatal(err)
			}
			var doc report.Document
			if err := json.Unmarshal([]byte(readOutput(t, opts.OutputFile)), &doc); err != nil {
				t.Fatal(err)
			}
			if len(doc.BasicResults) != tt.want {
				t.Errorf("basic_results = %d, want %d", len(doc.BasicResults), tt.want)
			}
		})
	}
}

func TestScanSavedToHistory(t *testing.T) {
	srv := apiServer(t)
	dict := writeDictionary(t, []string{"admin", "internal"})
	opts := testOpts(t, srv.URL, dict)
	opts.DBPath = filepath.Join(t.TempDir(), "history.db")

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(opts.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	recs, err := db.Recent(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Target != srv.URL || recs[0].Forbidden != 1 || recs[0].Findings != 1 {
		t.Errorf("records = %+v", recs)
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	srv := apiServer(t)
	dict := writeDictionary(t, []string{"admin"})

	tests := []struct {
		name   string
		modify func(o *config.Options)
	}{
		{"ftp target", func(o *config.Options) { o.URL = "ftp://example.com" }},
		{"blank token", func(o *config.Options) { o.AuthToken = "   " }},
		{"two segment jwt", func(o *config.Options) { o.AuthToken = "abc.def" }},
		{"bad proxy", func(o *config.Options) { o.Proxy = "gopher://proxy:70" }},
		{"concurrency out of range", func(o *config.Options) { o.Concurrency = 500 }},
		{"bad log level", func(o *config.Options) { o.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOpts(t, srv.URL, dict)
			tt.modify(opts)
			if err := Run(context.Background(), opts); err == nil {
				t.Error("expected error")
			}
			if _, err := os.Stat(opts.OutputFile); err == nil {
				t.Error("output file created for rejected options")
			}
		})
	}
}

func TestCanceledScanStillWritesReport(t *testing.T) {
	srv := apiServer(t)
	dict := writeDictionary(t, []string{"admin", "login"})
	opts := testOpts(t, srv.URL, dict)
	opts.OutputFormat = "json"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, opts); err != nil {
		t.Fatal(err)
	}

	var doc report.Document
	if err := json.Unmarshal([]byte(readOutput(t, opts.OutputFile)), &doc); err != nil {
		t.Fatal(err)
	}
	if !doc.Stats.Interrupted {
		t.Error("canceled scan not marked interrupted")
	}
}
