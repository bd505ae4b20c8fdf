package output

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/maxvaer/apiprobe/internal/detect"
	"github.com/maxvaer/apiprobe/internal/report"
)

// forbiddenShown is how many 403 URLs the summary lists before eliding.
const forbiddenShown = 10

// LabelCount is the number of findings carrying one label.
type LabelCount struct {
	Label string
	Risk  int
	Count int
}

// GroupFindings counts findings per label, highest risk first and then by
// label name.
func GroupFindings(rep *report.Report) []LabelCount {
	return groupFindings(rep.Findings())
}

func groupFindings(findings []detect.Finding) []LabelCount {
	byLabel := make(map[string]*LabelCount)
	for _, f := range findings {
		lc, ok := byLabel[f.Label]
		if !ok {
			lc = &LabelCount{Label: f.Label, Risk: f.Risk}
			byLabel[f.Label] = lc
		}
		lc.Count++
	}
	out := make([]LabelCount, 0, len(byLabel))
	for _, lc := range byLabel {
		out = append(out, *lc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Risk != out[j].Risk {
			return out[i].Risk > out[j].Risk
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// PrintSummary writes the end-of-scan summary.
func PrintSummary(w io.Writer, rep *report.Report, noColor bool) {
	PrintDocument(w, rep.Snapshot(), noColor)
}

// PrintDocument writes the summary of a report document, such as one loaded
// from scan history.
func PrintDocument(w io.Writer, doc report.Document, noColor bool) {
	colors := newPalette(noColor)
	cfg := doc.ScanConfig
	s := doc.Stats
	forbidden := doc.ForbiddenURLs
	success := doc.BasicResults

	fmt.Fprintf(w, "\n=== Scan summary ===\n")
	fmt.Fprintf(w, "Target:        %s\n", cfg.Target)
	fmt.Fprintf(w, "Paths scanned: %d/%d\n", s.Processed, cfg.PathsScanned)
	fmt.Fprintf(w, "Duration:      %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Started:       %s\n", s.StartedAt.Format(time.RFC3339))
	if s.Interrupted {
		fmt.Fprintf(w, "%s\n", colors.client.Sprint("Scan interrupted before all paths were probed"))
	}

	fmt.Fprintf(w, "\nStatus:\n")
	fmt.Fprintf(w, "  - errors (5xx / transport): %d\n", doc.ErrorCount)
	for _, reason := range sortedKeys(s.Failures) {
		fmt.Fprintf(w, "      %s: %d\n", reason, s.Failures[reason])
	}
	fmt.Fprintf(w, "  - forbidden (403): %d\n", len(forbidden))
	fmt.Fprintf(w, "  - kept responses: %d\n", len(success))

	groups := groupFindings(doc.SensitiveFindings)
	if len(groups) == 0 {
		fmt.Fprintf(w, "\nNo sensitive data found\n")
	} else {
		fmt.Fprintf(w, "\nSensitive data (%d findings):\n", s.Findings)
		for _, g := range groups {
			fmt.Fprintf(w, "  - %s: %d\n", colors.risk(g.Risk).Sprint(g.Label), g.Count)
		}
	}

	if len(forbidden) > 0 {
		fmt.Fprintf(w, "\nForbidden URLs (%d):\n", len(forbidden))
		for i, u := range forbidden {
			if i == forbiddenShown {
				fmt.Fprintf(w, "  ... and %d more\n", len(forbidden)-forbiddenShown)
				break
			}
			fmt.Fprintf(w, "  %d. %s\n", i+1, u)
		}
	}

	PrintTree(w, success)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
