package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/scanner"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// palette holds the colors used by the text renderers.
type palette struct {
	ok, redirect, client, server, dim, high, medium, low *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		ok:       color.New(color.FgGreen),
		redirect: color.New(color.FgCyan),
		client:   color.New(color.FgYellow),
		server:   color.New(color.FgRed),
		dim:      color.New(color.Faint),
		high:     color.New(color.FgRed, color.Bold),
		medium:   color.New(color.FgYellow),
		low:      color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.ok, p.redirect, p.client, p.server, p.dim, p.high, p.medium, p.low} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return p
}

func (p palette) status(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return p.ok
	case code >= 300 && code < 400:
		return p.redirect
	case code >= 400 && code < 500:
		return p.client
	default:
		return p.server
	}
}

func (p palette) risk(r int) *color.Color {
	switch {
	case r >= 8:
		return p.high
	case r >= 5:
		return p.medium
	default:
		return p.low
	}
}

// TextWriter prints kept results as they arrive.
type TextWriter struct {
	w      io.Writer
	closer io.Closer
	colors palette
	quiet  bool
}

// NewTextWriter wraps w; closer may be nil.
func NewTextWriter(w io.Writer, closer io.Closer, noColor, quiet bool) *TextWriter {
	return &TextWriter{w: w, closer: closer, colors: newPalette(noColor), quiet: quiet}
}

func (t *TextWriter) WriteHeader() error {
	if t.quiet {
		return nil
	}
	_, err := t.colors.dim.Fprintln(t.w, "Code      Size  URL")
	return err
}

func (t *TextWriter) WriteResult(result scanner.Result) error {
	o := result.Outcome
	title := ""
	if result.Title != "" {
		title = fmt.Sprintf("  [%s]", result.Title)
	}
	_, err := fmt.Fprintf(t.w, "%s  %8d  %s%s\n",
		t.colors.status(o.Status).Sprintf("%3d", o.Status),
		len(o.Body),
		o.URL,
		title,
	)
	if err != nil {
		return err
	}
	if result.Disposition != triage.KeepWithFindings {
		return nil
	}
	for _, f := range result.Findings {
		if _, err := fmt.Fprintf(t.w, "            %s %s\n",
			t.colors.risk(f.Risk).Sprintf("%-15s", f.Label), f.MatchedText); err != nil {
			return err
		}
	}
	return nil
}

func (t *TextWriter) WriteFooter(rep *report.Report) error {
	if t.quiet {
		return nil
	}
	s := rep.Stats()
	_, err := fmt.Fprintf(os.Stderr,
		"\nCompleted: %d/%d requests | Kept: %d | Forbidden: %d | Errors: %d | Duration: %s | %.1f req/s\n",
		s.Processed, s.Total,
		s.Dispositions[triage.KeepWithFindings],
		s.Dispositions[triage.KeepURLOnly],
		rep.ErrorCount(),
		s.Elapsed.Round(time.Millisecond),
		s.RequestsPerSec,
	)
	return err
}

func (t *TextWriter) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
