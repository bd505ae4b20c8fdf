package output

import (
	"encoding/json"
	"io"

	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/scanner"
)

// JSONWriter writes the finished report as one indented JSON document.
type JSONWriter struct {
	w      io.Writer
	closer io.Closer
}

func (j *JSONWriter) WriteHeader() error { return nil }

func (j *JSONWriter) WriteResult(scanner.Result) error { return nil }

func (j *JSONWriter) WriteFooter(rep *report.Report) error {
	return WriteJSON(j.w, rep)
}

func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// WriteJSON encodes the report snapshot to w.
func WriteJSON(w io.Writer, rep *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep.Snapshot())
}
