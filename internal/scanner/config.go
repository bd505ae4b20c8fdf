package scanner

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxvaer/apiprobe/internal/detect"
	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/triage"
)

const (
	// DefaultUserAgent is sent when no User-Agent list is configured.
	DefaultUserAgent = "Mozilla/5.0 (compatible; apiprobe)"
	// DefaultMaxBodyBytes caps how much of each response body is read.
	DefaultMaxBodyBytes int64 = 10 << 20
)

// Config is everything one scan needs. The zero value is not usable; at
// least BaseURL, Concurrency and Timeout must be set.
type Config struct {
	BaseURL     string
	Concurrency int
	Timeout     time.Duration

	// Proxy is an http, https or socks5 URL. Empty disables proxying.
	Proxy string
	// BearerToken is sent as "Authorization: Bearer <token>" when non-empty.
	BearerToken string
	// UserAgents rotate round-robin across requests. Empty means
	// DefaultUserAgent.
	UserAgents      []string
	CheckUserAgents bool
	Headers         map[string]string

	FollowRedirects bool
	VerifyTLS       bool
	MaxBodyBytes    int64

	// RateLimit is requests per second across all workers; 0 is unlimited.
	RateLimit        float64
	AdaptiveThrottle bool

	Fallback triage.Fallback
	Registry *detect.Registry

	Logger logrus.FieldLogger
	Pauser *Pauser
	// OnResult is called from worker goroutines after each path is recorded.
	OnResult func(Result)
}

// ConfigError reports a configuration value rejected before any probing.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks every field the scan depends on.
func (c *Config) Validate() error {
	if _, err := parseBaseURL(c.BaseURL); err != nil {
		return err
	}
	if c.Concurrency <= 0 {
		return &ConfigError{Field: "concurrency", Reason: "must be greater than zero"}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be greater than zero"}
	}
	if c.Proxy != "" {
		if _, err := parseProxy(c.Proxy); err != nil {
			return err
		}
	}
	if err := validateToken(c.BearerToken); err != nil {
		return err
	}
	for _, ua := range c.UserAgents {
		if strings.TrimSpace(ua) == "" {
			return &ConfigError{Field: "user agent", Reason: "must not be blank"}
		}
	}
	if c.MaxBodyBytes < 0 {
		return &ConfigError{Field: "max body", Reason: "must not be negative"}
	}
	if c.RateLimit < 0 {
		return &ConfigError{Field: "rate limit", Reason: "must not be negative"}
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ConfigError{Field: "base URL", Reason: "must not be empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{Field: "base URL", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigError{Field: "base URL", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return nil, &ConfigError{Field: "base URL", Reason: "missing host"}
	}
	return u, nil
}

func parseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{Field: "proxy", Reason: err.Error()}
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, &ConfigError{Field: "proxy", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ConfigError{Field: "proxy", Reason: "missing host"}
	}
	return u, nil
}

// validateToken rejects whitespace-only tokens and dotted tokens that are
// not three JWT segments. An empty token means no authentication.
func validateToken(token string) error {
	if token == "" {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return &ConfigError{Field: "auth token", Reason: "must not be blank"}
	}
	if strings.Contains(token, ".") && len(strings.Split(token, ".")) != 3 {
		return &ConfigError{Field: "auth token", Reason: "JWT must have three dot-separated segments"}
	}
	return nil
}

func (c *Config) userAgents() []string {
	if len(c.UserAgents) == 0 {
		return []string{DefaultUserAgent}
	}
	out := make([]string, len(c.UserAgents))
	copy(out, c.UserAgents)
	return out
}

func (c *Config) maxBody() int64 {
	if c.MaxBodyBytes == 0 {
		return DefaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// snapshot is the part of the configuration stored with the report.
func (c *Config) snapshot(paths int) report.Config {
	return report.Config{
		Target:         c.BaseURL,
		PathsScanned:   paths,
		Concurrency:    c.Concurrency,
		TimeoutSeconds: int(c.Timeout / time.Second),
		Proxy:          c.Proxy != "",
		Authenticated:  c.BearerToken != "",
		UserAgents:     len(c.userAgents()),
		Fallback:       c.Fallback.String(),
	}
}
