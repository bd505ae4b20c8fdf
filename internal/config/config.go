package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/maxvaer/apiprobe/internal/output"
	"github.com/maxvaer/apiprobe/internal/triage"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 100
)

// Options holds all configuration for an apiprobe scan.
type Options struct {
	// Target
	URL          string
	Dictionary   string // empty = use embedded
	IncludePaths string
	ExcludePaths string
	RequestFile  string // raw HTTP request supplying URL, headers and token

	// Performance
	Concurrency      int
	Timeout          time.Duration
	RateLimit        float64
	AdaptiveThrottle bool

	// HTTP
	Headers         map[string]string
	UserAgents      []string
	UserAgentFile   string
	CheckUserAgents bool
	Proxy           string
	AuthToken       string
	FollowRedirects bool
	VerifyTLS       bool
	MaxBody         int64

	// Triage
	Fallback string // "record" or "strict"

	// Output
	OutputFile   string
	OutputFormat string // "text", "json", "csv"
	Quiet        bool
	NoColor      bool
	LogLevel     string
	OnFinding    string // shell command run per result with findings

	// Storage
	DBPath string
}

// Validate checks the options that can be verified without touching the
// network. Scanner-level checks run again when the scan is built.
func (o *Options) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("target required: use -u")
	}
	if o.Concurrency < MinConcurrency || o.Concurrency > MaxConcurrency {
		return fmt.Errorf("--concurrency must be between %d and %d", MinConcurrency, MaxConcurrency)
	}
	if _, err := triage.ParseFallback(o.Fallback); err != nil {
		return err
	}
	if o.OutputFormat != "" && !slices.Contains(output.Formats, o.OutputFormat) {
		return fmt.Errorf("--format must be one of: %s", strings.Join(output.Formats, ", "))
	}
	for flag, path := range map[string]string{
		"--dictionary":      o.Dictionary,
		"--include-paths":   o.IncludePaths,
		"--exclude-paths":   o.ExcludePaths,
		"--user-agent-file": o.UserAgentFile,
		"--request-file":    o.RequestFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %w", flag, err)
		}
	}
	return nil
}
