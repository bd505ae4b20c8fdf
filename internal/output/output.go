// Package output renders scan results and the final report.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/scanner"
)

// Formats lists the supported output formats.
var Formats = []string{"json", "csv", "text"}

// Writer is implemented by each output format. WriteResult receives kept
// results as they arrive; callers must not call it concurrently.
type Writer interface {
	WriteHeader() error
	WriteResult(result scanner.Result) error
	WriteFooter(rep *report.Report) error
	Close() error
}

// New returns the writer for format. An empty outputFile means stdout; the
// file's directory is created when missing.
func New(format, outputFile string, noColor, quiet bool) (Writer, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		return &JSONWriter{w: w, closer: closer}, nil
	case "csv":
		return NewCSVWriter(w, closer), nil
	case "text", "":
		return NewTextWriter(w, closer, noColor, quiet), nil
	default:
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func openOutput(path string) (io.Writer, io.Closer, error) {
	if path == "" {
		return os.Stdout, nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating output directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file %s: %w", path, err)
	}
	return f, f, nil
}
