package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/scanner"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// CSVWriter writes one row per finding. Kept results without findings get a
// single row with empty finding columns.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter wraps w; closer may be nil.
func NewCSVWriter(w io.Writer, closer io.Closer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), closer: closer}
}

func (c *CSVWriter) WriteHeader() error {
	return c.w.Write([]string{"url", "status", "disposition", "label", "matched_text", "risk"})
}

func (c *CSVWriter) WriteResult(result scanner.Result) error {
	o := result.Outcome
	row := []string{o.URL, strconv.Itoa(o.Status), result.Disposition.String()}
	if len(result.Findings) == 0 || result.Disposition != triage.KeepWithFindings {
		return c.w.Write(append(row, "", "", ""))
	}
	for _, f := range result.Findings {
		if err := c.w.Write(append(row[:3:3], f.Label, f.MatchedText, strconv.Itoa(f.Risk))); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSVWriter) WriteFooter(*report.Report) error {
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
