package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxvaer/apiprobe/internal/detect"
	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// Prober fetches one candidate path.
type Prober interface {
	Probe(ctx context.Context, path string) Outcome
}

// Coordinator runs candidates through a fixed pool of workers and collects
// their dispositions into a report.
type Coordinator struct {
	cfg       Config
	prober    Prober
	detector  *detect.Detector
	table     *triage.Table
	throttler *Throttler
	log       logrus.FieldLogger
}

// NewCoordinator validates cfg and returns a coordinator probing through p.
func NewCoordinator(cfg Config, p Prober) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.logger()
	return &Coordinator{
		cfg:       cfg,
		prober:    p,
		detector:  detect.New(cfg.Registry),
		table:     triage.NewTable(cfg.Fallback),
		throttler: NewThrottler(cfg.RateLimit, cfg.AdaptiveThrottle, log),
		log:       log,
	}, nil
}

// Scan processes every path exactly once and returns the finalized report.
// When ctx ends early, dispatch stops, in-flight probes are abandoned and
// the report is marked interrupted.
func (c *Coordinator) Scan(ctx context.Context, paths []string) *report.Report {
	rep := report.New(c.cfg.snapshot(len(paths)))

	// More workers than paths would only idle.
	workers := min(c.cfg.Concurrency, max(len(paths), 1))
	pathsCh := make(chan string, workers)

	var wg sync.WaitGroup

	// Producer.
	go func() {
		defer close(pathsCh)
		for _, p := range paths {
			select {
			case pathsCh <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range pathsCh {
				if ctx.Err() != nil {
					return
				}
				if c.cfg.Pauser != nil {
					if err := c.cfg.Pauser.Wait(ctx); err != nil {
						return
					}
				}
				if err := c.throttler.Wait(ctx); err != nil {
					return
				}

				out := c.prober.Probe(ctx, path)
				if out.Failure != nil && ctx.Err() != nil {
					// Abandoned by cancellation, not a result.
					return
				}
				c.handle(rep, out)
			}
		}()
	}

	wg.Wait()

	interrupted := rep.Stats().Processed < len(paths)
	rep.Finalize(c.pausedDuration(), interrupted)
	if interrupted {
		c.log.Warnf("scan interrupted after %d of %d paths", rep.Stats().Processed, len(paths))
	}
	return rep
}

func (c *Coordinator) pausedDuration() (d time.Duration) {
	if c.cfg.Pauser != nil {
		d = c.cfg.Pauser.PausedDuration()
	}
	return d
}

// handle triages one outcome, scans the body when the rule asks for it and
// records the disposition.
func (c *Coordinator) handle(rep *report.Report, out Outcome) {
	if out.Failure != nil {
		c.throttler.RecordError()
	} else {
		c.throttler.RecordStatus(out.Status)
	}

	rule := c.table.Classify(out.Triage())
	var findings []detect.Finding
	if rule.Scan {
		findings = c.detector.Detect(out.Body)
		for i := range findings {
			findings[i].SourceURL = out.URL
		}
	}
	disp := rule.Resolve(len(findings) > 0)

	item := report.Item{
		Disposition: disp,
		Entry: report.Entry{
			URL:           out.URL,
			Path:          out.Path,
			Status:        out.Status,
			ContentLength: len(out.Body),
			ResponseTime:  out.Duration.Milliseconds(),
		},
	}
	switch disp {
	case triage.KeepWithFindings:
		item.Entry.Findings = findings
		item.Entry.Title = pageTitle(out.Header, out.Body)
		if len(findings) > 0 {
			c.log.WithFields(logrus.Fields{"url": out.URL, "status": out.Status, "findings": len(findings)}).Info("sensitive data found")
		}
	case triage.CountError:
		if out.Failure != nil {
			item.FailureReason = string(out.Failure.Reason)
		}
	}
	rep.Record(item)

	if c.cfg.OnResult != nil {
		c.cfg.OnResult(Result{Outcome: out, Rule: rule.Name, Disposition: disp, Findings: item.Entry.Findings, Title: item.Entry.Title})
	}
}

// Run validates cfg, builds a requester, optionally filters the User-Agent
// list, and scans paths.
func Run(ctx context.Context, cfg Config, paths []string) (*report.Report, error) {
	req, err := NewRequester(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CheckUserAgents {
		kept, err := req.Preflight(ctx)
		if err != nil {
			return nil, fmt.Errorf("user agent preflight: %w", err)
		}
		cfg.UserAgents = kept
		cfg.logger().Infof("%d user agents accepted by target", len(kept))
	}
	coord, err := NewCoordinator(cfg, req)
	if err != nil {
		return nil, err
	}
	return coord.Scan(ctx, paths), nil
}
