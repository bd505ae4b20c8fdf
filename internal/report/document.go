package report

import (
	"time"

	"github.com/maxvaer/apiprobe/internal/detect"
)

// Document is the serialized form of a report.
type Document struct {
	BasicResults      []Entry          `json:"basic_results"`
	SensitiveFindings []detect.Finding `json:"sensitive_findings"`
	ScanTimestamp     time.Time        `json:"scan_timestamp"`
	ScanDuration      float64          `json:"scan_duration"`
	ScanConfig        Config           `json:"scan_config"`
	ErrorCount        int              `json:"error_count"`
	ForbiddenURLs     []string         `json:"forbidden_urls"`
	Stats             Stats            `json:"stats"`
}

// Snapshot returns a copy of the report suitable for encoding. Empty lists
// encode as [] rather than null. ScanDuration is in seconds.
func (r *Report) Snapshot() Document {
	stats := r.Stats()
	success := r.Success()
	for i := range success {
		if success[i].Findings == nil {
			success[i].Findings = []detect.Finding{}
		}
	}
	return Document{
		BasicResults:      success,
		SensitiveFindings: r.Findings(),
		ScanTimestamp:     stats.StartedAt,
		ScanDuration:      stats.Elapsed.Seconds(),
		ScanConfig:        r.Config(),
		ErrorCount:        r.ErrorCount(),
		ForbiddenURLs:     r.Forbidden(),
		Stats:             stats,
	}
}
