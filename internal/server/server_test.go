package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/maxvaer/apiprobe/internal/store"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func target(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin":
			fmt.Fprint(w, `{"contact":"ops@example.com"}`)
		case "/secret":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestServer(t *testing.T, withDB bool) *Server {
	t.Helper()
	cfg := Config{Logger: quietLogger(), AllowOrigins: []string{"http://localhost:3000"}}
	if withDB {
		db, err := store.Open(filepath.Join(t.TempDir(), "scans.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })
		cfg.DB = db
	}
	return New(cfg)
}

func postScan(t *testing.T, s *Server, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestScanEndpoint(t *testing.T) {
	ts := target(t)
	s := newTestServer(t, true)

	resp := postScan(t, s, fmt.Sprintf(`{"target":%q,"paths":["admin","secret","missing"],"concurrency":2,"timeout_seconds":5}`, ts.URL))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}

	var got ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID == 0 {
		t.Error("scan was not stored")
	}
	if len(got.Report.BasicResults) != 1 || got.Report.BasicResults[0].Path != "admin" {
		t.Errorf("basic_results = %+v", got.Report.BasicResults)
	}
	if len(got.Report.ForbiddenURLs) != 1 || !strings.HasSuffix(got.Report.ForbiddenURLs[0], "/secret") {
		t.Errorf("forbidden_urls = %v", got.Report.ForbiddenURLs)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/scans/%d", got.ID), nil)
	resp2, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp2.StatusCode)
	}
	var stored ScanResponse
	if err := json.NewDecoder(resp2.Body).Decode(&stored); err != nil {
		t.Fatal(err)
	}
	if stored.Report.ScanConfig.Target != ts.URL {
		t.Errorf("stored target = %q", stored.Report.ScanConfig.Target)
	}
}

func TestScanRejectsBadRequest(t *testing.T) {
	s := newTestServer(t, false)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"target":`},
		{"bad scheme", `{"target":"ftp://x","paths":["a"]}`},
		{"bad fallback", `{"target":"http://x","paths":["a"],"fallback":"loose"}`},
		{"negative concurrency", `{"target":"http://x","paths":["a"],"concurrency":-1}`},
		{"concurrency above limit", `{"target":"http://x","paths":["a"],"concurrency":101}`},
		{"huge concurrency", `{"target":"http://x","paths":["a"],"concurrency":4611686018427387904}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postScan(t, s, tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", resp.StatusCode)
			}
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	s := newTestServer(t, true)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/scans", nil))
	if err != nil {
		t.Fatal(err)
	}
	var recs []store.ScanRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(recs) != 0 {
		t.Errorf("empty list: status %d, %d records", resp.StatusCode, len(recs))
	}

	for path, want := range map[string]int{
		"/scans/999":      http.StatusNotFound,
		"/scans/abc":      http.StatusUnprocessableEntity,
		"/scans?limit=-1": http.StatusUnprocessableEntity,
	} {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(t, false)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/scans", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRecoversFromPanic(t *testing.T) {
	s := newTestServer(t, false)
	s.App().Get("/boom", func(ctx fiber.Ctx) error {
		panic("handler bug")
	})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestScanBoundedByMaxScanTime(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	s := New(Config{Logger: quietLogger(), MaxScanTime: 50 * time.Millisecond})
	resp := postScan(t, s, fmt.Sprintf(`{"target":%q,"paths":["a","b"],"timeout_seconds":5}`, slow.URL))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Report.Stats.Interrupted {
		t.Error("scan past its deadline not marked interrupted")
	}
}
