// Package report accumulates the results of one scan.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/maxvaer/apiprobe/internal/detect"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// Entry is one kept response.
type Entry struct {
	URL           string           `json:"url"`
	Path          string           `json:"path"`
	Status        int              `json:"status"`
	ContentLength int              `json:"content_length"`
	ResponseTime  int64            `json:"response_time_ms"`
	Title         string           `json:"title,omitempty"`
	Findings      []detect.Finding `json:"findings"`
}

// Config is the snapshot of scan settings stored with the report.
type Config struct {
	Target         string `json:"target"`
	PathsScanned   int    `json:"paths_scanned"`
	Concurrency    int    `json:"concurrency"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Proxy          bool   `json:"proxy"`
	Authenticated  bool   `json:"authenticated"`
	UserAgents     int    `json:"user_agents"`
	Fallback       string `json:"fallback"`
}

// Stats summarizes a finished scan.
type Stats struct {
	Total          int                        `json:"total_candidates"`
	Processed      int                        `json:"processed"`
	Dispositions   map[triage.Disposition]int `json:"dispositions"`
	Failures       map[string]int             `json:"failures,omitempty"`
	Findings       int                        `json:"findings"`
	StartedAt      time.Time                  `json:"started_at"`
	FinishedAt     time.Time                  `json:"finished_at"`
	Elapsed        time.Duration              `json:"elapsed_ns"`
	RequestsPerSec float64                    `json:"requests_per_sec"`
	Interrupted    bool                       `json:"interrupted,omitempty"`
}

// Item is one triaged candidate handed to the report.
type Item struct {
	Disposition triage.Disposition
	Entry       Entry
	// FailureReason is set for transport failures.
	FailureReason string
}

// Report is the single mutable aggregate of a scan. Every method is safe for
// concurrent use; after Finalize the report no longer changes.
type Report struct {
	mu         sync.Mutex
	config     Config
	success    []Entry
	forbidden  []string
	errorCount int
	counts     map[triage.Disposition]int
	failures   map[string]int
	findings   int
	processed  int
	started    time.Time
	finished   time.Time
	paused     time.Duration
	interrupt  bool
	finalized  bool
}

// New returns an empty report started now.
func New(cfg Config) *Report {
	return &Report{
		config:   cfg,
		counts:   make(map[triage.Disposition]int, len(triage.Dispositions)),
		failures: make(map[string]int),
		started:  time.Now(),
	}
}

// Record places rec in its bucket and bumps the counters. Records arriving
// after Finalize are dropped.
func (r *Report) Record(rec Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}

	r.processed++
	r.counts[rec.Disposition]++

	switch rec.Disposition {
	case triage.KeepWithFindings:
		r.success = append(r.success, rec.Entry)
		r.findings += len(rec.Entry.Findings)
	case triage.KeepURLOnly:
		r.forbidden = append(r.forbidden, rec.Entry.URL)
	case triage.CountError:
		r.errorCount++
		if rec.FailureReason != "" {
			r.failures[rec.FailureReason]++
		}
	}
}

// Finalize freezes the report. paused is subtracted from the elapsed time;
// interrupted marks a scan that stopped before every candidate ran. Success
// entries are ordered by URL then status so reports compare across runs.
func (r *Report) Finalize(paused time.Duration, interrupted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	r.finalized = true
	r.finished = time.Now()
	r.paused = paused
	r.interrupt = interrupted

	sort.SliceStable(r.success, func(i, j int) bool {
		if r.success[i].URL != r.success[j].URL {
			return r.success[i].URL < r.success[j].URL
		}
		return r.success[i].Status < r.success[j].Status
	})
	sort.Strings(r.forbidden)
}

// Finalized reports whether Finalize has run.
func (r *Report) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Config returns the settings snapshot.
func (r *Report) Config() Config {
	return r.config
}

// Success returns a copy of the success entries.
func (r *Report) Success() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.success))
	copy(out, r.success)
	return out
}

// Forbidden returns a copy of the URLs that answered 403.
func (r *Report) Forbidden() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.forbidden))
	copy(out, r.forbidden)
	return out
}

// ErrorCount returns the number of 5xx responses and transport failures.
func (r *Report) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCount
}

// Findings returns every finding across success entries, in entry order.
func (r *Report) Findings() []detect.Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]detect.Finding, 0, r.findings)
	for _, e := range r.success {
		out = append(out, e.Findings...)
	}
	return out
}

// Stats returns the current statistics. Before Finalize, elapsed time is
// measured up to now.
func (r *Report) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.finished
	if !r.finalized {
		end = time.Now()
	}
	elapsed := end.Sub(r.started) - r.paused
	if elapsed < 0 {
		elapsed = 0
	}

	s := Stats{
		Total:        r.config.PathsScanned,
		Processed:    r.processed,
		Dispositions: make(map[triage.Disposition]int, len(triage.Dispositions)),
		Failures:     make(map[string]int, len(r.failures)),
		Findings:     r.findings,
		StartedAt:    r.started,
		FinishedAt:   r.finished,
		Elapsed:      elapsed,
		Interrupted:  r.interrupt,
	}
	for _, d := range triage.Dispositions {
		s.Dispositions[d] = r.counts[d]
	}
	for k, v := range r.failures {
		s.Failures[k] = v
	}
	if elapsed > 0 {
		s.RequestsPerSec = float64(r.processed) / elapsed.Seconds()
	}
	return s
}
