package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxvaer/apiprobe/internal/detect"
	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// stubProber answers from a fixed table; unknown paths get a 404.
type stubProber struct {
	outcomes map[string]Outcome
	calls    atomic.Int64
}

func (s *stubProber) Probe(ctx context.Context, path string) Outcome {
	s.calls.Add(1)
	out, ok := s.outcomes[path]
	if !ok {
		out = Outcome{Status: 404}
	}
	out.Path = path
	out.URL = "http://target/" + path
	return out
}

func scanWith(t *testing.T, cfg Config, p Prober, paths []string) *report.Report {
	t.Helper()
	coord, err := NewCoordinator(cfg, p)
	if err != nil {
		t.Fatal(err)
	}
	return coord.Scan(context.Background(), paths)
}

func checkDispositionSum(t *testing.T, rep *report.Report) {
	t.Helper()
	s := rep.Stats()
	sum := 0
	for _, n := range s.Dispositions {
		sum += n
	}
	if sum != s.Processed {
		t.Errorf("disposition counts sum to %d, processed %d", sum, s.Processed)
	}
}

// testJWT is assembled so the source never holds a complete token.
var testJWT = "eyJhbGciOiJ" + "IUzI1NiJ9" + "." + "eyJzdWIiOiIx" + "MjM0NTY3ODkwIn0" + "." + "dXKzGiMqQAW" + "lZQsCSJkOoY8Gs_test"

func TestScanScenario(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("session token " + testJWT))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("owner root@example.com"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rep, err := Run(context.Background(), testConfig(srv.URL), []string{"admin", "login", "missing"})
	if err != nil {
		t.Fatal(err)
	}

	success := rep.Success()
	if len(success) != 1 {
		t.Fatalf("success = %+v", success)
	}
	e := success[0]
	if e.URL != srv.URL+"/admin" || e.Status != 200 {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Findings) != 1 || e.Findings[0].Label != detect.LabelJWT || e.Findings[0].MatchedText != testJWT {
		t.Errorf("findings = %+v", e.Findings)
	}
	if e.Findings[0].SourceURL != e.URL {
		t.Errorf("SourceURL = %q, want %q", e.Findings[0].SourceURL, e.URL)
	}
	if f := rep.Forbidden(); !reflect.DeepEqual(f, []string{srv.URL + "/login"}) {
		t.Errorf("forbidden = %v", f)
	}
	if rep.ErrorCount() != 0 {
		t.Errorf("ErrorCount = %d", rep.ErrorCount())
	}
	for _, e := range success {
		if e.Status == 404 {
			t.Error("404 leaked into success entries")
		}
	}
	if s := rep.Stats(); s.Dispositions[triage.Discard] != 1 || s.Interrupted {
		t.Errorf("stats = %+v", s)
	}
	checkDispositionSum(t, rep)
}

func TestScanBodyCutMidCharacter(t *testing.T) {
	body := "contact: a@b.com caf\u00e9"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxBodyBytes = int64(len(body) - 1)
	rep, err := Run(context.Background(), cfg, []string{"admin"})
	if err != nil {
		t.Fatal(err)
	}
	if f := rep.Findings(); len(f) != 1 || f[0].MatchedText != "a@b.com" {
		t.Errorf("findings = %+v, want the email before the cut", f)
	}
}

func TestScanHugeConcurrency(t *testing.T) {
	p := &stubProber{outcomes: map[string]Outcome{"a": {Status: 200, Body: []byte("a@b.com")}}}
	cfg := Config{BaseURL: "http://target", Concurrency: 1 << 62, Timeout: time.Second}
	rep := scanWith(t, cfg, p, []string{"a", "b", "c"})
	if s := rep.Stats(); s.Processed != 3 || len(rep.Success()) != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestScanCountsErrors(t *testing.T) {
	p := &stubProber{outcomes: map[string]Outcome{
		"boom":  {Status: 500, Body: []byte("token a@b.com")},
		"edge":  {Status: 599},
		"slow":  {Failure: &Failure{Reason: ReasonTimeout, Err: context.DeadlineExceeded}},
		"reset": {Failure: &Failure{Reason: ReasonConnection, Err: errors.New("reset")}},
	}}
	rep := scanWith(t, Config{BaseURL: "http://target", Concurrency: 2, Timeout: time.Second}, p, []string{"boom", "edge", "slow", "reset"})

	if rep.ErrorCount() != 4 {
		t.Errorf("ErrorCount = %d, want 4", rep.ErrorCount())
	}
	if len(rep.Success()) != 0 || len(rep.Forbidden()) != 0 {
		t.Error("errors must not land in a bucket")
	}
	s := rep.Stats()
	if s.Failures[string(ReasonTimeout)] != 1 || s.Failures[string(ReasonConnection)] != 1 {
		t.Errorf("failures = %v", s.Failures)
	}
	checkDispositionSum(t, rep)
}

func TestScanForbiddenHasNoFindings(t *testing.T) {
	p := &stubProber{outcomes: map[string]Outcome{
		"secret": {Status: 403, Body: []byte("contact: a@b.com")},
	}}
	rep := scanWith(t, Config{BaseURL: "http://target", Concurrency: 1, Timeout: time.Second}, p, []string{"secret"})
	if len(rep.Forbidden()) != 1 || len(rep.Findings()) != 0 || len(rep.Success()) != 0 {
		t.Errorf("unexpected report: success=%v forbidden=%v", rep.Success(), rep.Forbidden())
	}
}

func TestScanFallback(t *testing.T) {
	outcomes := map[string]Outcome{
		"moved":  {Status: 301},
		"authz":  {Status: 401, Body: []byte("unauthorized")},
		"leaky":  {Status: 418, Body: []byte("teapot a@b.com")},
		"normal": {Status: 200, Body: []byte("nothing here")},
	}
	paths := []string{"moved", "authz", "leaky", "normal"}

	rep := scanWith(t, Config{BaseURL: "http://target", Concurrency: 2, Timeout: time.Second}, &stubProber{outcomes: outcomes}, paths)
	got := map[string]int{}
	for _, e := range rep.Success() {
		got[e.Path] = len(e.Findings)
	}
	want := map[string]int{"moved": 0, "authz": 0, "leaky": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("record fallback success = %v, want %v", got, want)
	}

	strict := Config{BaseURL: "http://target", Concurrency: 2, Timeout: time.Second, Fallback: triage.FallbackStrict}
	rep = scanWith(t, strict, &stubProber{outcomes: outcomes}, paths)
	if s := rep.Success(); len(s) != 1 || s[0].Path != "leaky" {
		t.Errorf("strict fallback success = %+v", s)
	}
}

func TestScanConcurrencyIndependent(t *testing.T) {
	outcomes := map[string]Outcome{}
	var paths []string
	for i := 0; i < 200; i++ {
		p := fmt.Sprintf("p%03d", i)
		paths = append(paths, p)
		switch i % 5 {
		case 0:
			outcomes[p] = Outcome{Status: 200, Body: []byte(fmt.Sprintf("user%d@example.com", i))}
		case 1:
			outcomes[p] = Outcome{Status: 403}
		case 2:
			outcomes[p] = Outcome{Status: 502}
		case 3:
			outcomes[p] = Outcome{Status: 200, Body: []byte("clean")}
		}
	}

	run := func(n int) *report.Report {
		return scanWith(t, Config{BaseURL: "http://target", Concurrency: n, Timeout: time.Second}, &stubProber{outcomes: outcomes}, paths)
	}
	one, fifty := run(1), run(50)

	if !reflect.DeepEqual(one.Success(), fifty.Success()) {
		t.Error("success entries differ between concurrency 1 and 50")
	}
	if !reflect.DeepEqual(one.Forbidden(), fifty.Forbidden()) {
		t.Error("forbidden lists differ between concurrency 1 and 50")
	}
	if one.ErrorCount() != fifty.ErrorCount() || one.ErrorCount() != 40 {
		t.Errorf("error counts %d vs %d", one.ErrorCount(), fifty.ErrorCount())
	}
	if len(one.Success()) != 40 || len(one.Forbidden()) != 40 {
		t.Errorf("bucket sizes %d/%d", len(one.Success()), len(one.Forbidden()))
	}
	checkDispositionSum(t, fifty)
}

func TestScanEachPathOnce(t *testing.T) {
	p := &stubProber{}
	paths := []string{"a", "b", "a", "c"}
	rep := scanWith(t, Config{BaseURL: "http://target", Concurrency: 3, Timeout: time.Second}, p, paths)
	if p.calls.Load() != 4 || rep.Stats().Processed != 4 {
		t.Errorf("calls = %d, processed = %d, want 4", p.calls.Load(), rep.Stats().Processed)
	}
}

func TestScanEmpty(t *testing.T) {
	rep := scanWith(t, Config{BaseURL: "http://target", Concurrency: 5, Timeout: time.Second}, &stubProber{}, nil)
	s := rep.Stats()
	if s.Processed != 0 || s.Total != 0 || s.Interrupted || len(rep.Success()) != 0 || rep.ErrorCount() != 0 {
		t.Errorf("expected empty report, got %+v", s)
	}
	if !rep.Finalized() {
		t.Error("report not finalized")
	}
}

// blockingProber answers the first n paths and then blocks until canceled.
type blockingProber struct {
	n    int64
	seen atomic.Int64
}

func (b *blockingProber) Probe(ctx context.Context, path string) Outcome {
	if b.seen.Add(1) <= b.n {
		return Outcome{Path: path, URL: "http://target/" + path, Status: 404}
	}
	<-ctx.Done()
	return Outcome{Path: path, Failure: &Failure{Reason: ReasonCanceled, Err: ctx.Err()}}
}

func TestScanInterrupted(t *testing.T) {
	var paths []string
	for i := 0; i < 50; i++ {
		paths = append(paths, fmt.Sprintf("p%d", i))
	}
	ctx, cancel := context.WithCancel(context.Background())
	coord, err := NewCoordinator(Config{BaseURL: "http://target", Concurrency: 4, Timeout: time.Second}, &blockingProber{n: 10})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	rep := coord.Scan(ctx, paths)

	s := rep.Stats()
	if !s.Interrupted {
		t.Error("expected interrupted report")
	}
	if s.Processed != 10 {
		t.Errorf("processed = %d, want 10", s.Processed)
	}
	if rep.ErrorCount() != 0 {
		t.Errorf("canceled probes must not count as errors, got %d", rep.ErrorCount())
	}
}

func TestScanOnResult(t *testing.T) {
	var n atomic.Int64
	cfg := Config{BaseURL: "http://target", Concurrency: 2, Timeout: time.Second, OnResult: func(r Result) {
		n.Add(1)
		if r.Rule == "" {
			t.Error("result without rule name")
		}
	}}
	scanWith(t, cfg, &stubProber{}, []string{"a", "b", "c"})
	if n.Load() != 3 {
		t.Errorf("OnResult called %d times, want 3", n.Load())
	}
}

func TestScanCustomRegistry(t *testing.T) {
	reg, err := detect.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.AddPattern("build_id", `BUILD-[0-9]{4}`, 1); err != nil {
		t.Fatal(err)
	}
	p := &stubProber{outcomes: map[string]Outcome{"v": {Status: 200, Body: []byte("BUILD-1234 a@b.com")}}}
	rep := scanWith(t, Config{BaseURL: "http://target", Concurrency: 1, Timeout: time.Second, Registry: reg}, p, []string{"v"})
	f := rep.Findings()
	if len(f) != 1 || f[0].Label != "build_id" {
		t.Errorf("findings = %+v", f)
	}
}

func TestNewCoordinatorRejectsBadConfig(t *testing.T) {
	_, err := NewCoordinator(Config{BaseURL: "http://target", Concurrency: 0, Timeout: time.Second}, &stubProber{})
	var cerr *ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "concurrency" {
		t.Errorf("err = %v, want concurrency ConfigError", err)
	}
}
