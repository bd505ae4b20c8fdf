package scanner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// ErrAllAgentsRejected is returned by Preflight when no User-Agent receives
// a 2xx answer from the target.
var ErrAllAgentsRejected = errors.New("all user agents rejected by target")

// Requester issues one GET per path against a fixed base URL. It is safe for
// concurrent use and shares one connection pool across workers.
type Requester struct {
	client  *http.Client
	base    string
	headers map[string]string
	token   string
	timeout time.Duration
	maxBody int64
	log     logrus.FieldLogger

	mu     sync.RWMutex
	agents []string
	next   atomic.Uint64
}

// NewRequester validates cfg and builds the shared HTTP client.
func NewRequester(cfg Config) (*Requester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, _ := parseBaseURL(cfg.BaseURL)

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
		DialContext: (&net.Dialer{
			Timeout: cfg.Timeout,
		}).DialContext,
		MaxIdleConnsPerHost: cfg.Concurrency,
		MaxIdleConns:        cfg.Concurrency,
	}
	if cfg.Proxy != "" {
		proxyURL, _ := parseProxy(cfg.Proxy)
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Requester{
		client:  client,
		base:    strings.TrimRight(base.String(), "/"),
		headers: cfg.Headers,
		token:   cfg.BearerToken,
		timeout: cfg.Timeout,
		maxBody: cfg.maxBody(),
		log:     cfg.logger(),
		agents:  cfg.userAgents(),
	}, nil
}

// URL joins the base URL and path with exactly one slash.
func (r *Requester) URL(path string) string {
	return r.base + "/" + strings.TrimLeft(path, "/")
}

// UserAgents returns the current rotation.
func (r *Requester) UserAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.agents))
	copy(out, r.agents)
	return out
}

func (r *Requester) nextAgent() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.next.Add(1) - 1
	return r.agents[n%uint64(len(r.agents))]
}

// Probe fetches path and never returns an error: transport problems are
// reported in Outcome.Failure.
func (r *Requester) Probe(ctx context.Context, path string) Outcome {
	return r.do(ctx, path, r.nextAgent())
}

func (r *Requester) do(ctx context.Context, path, agent string) Outcome {
	out := Outcome{Path: path, URL: r.URL(path), UserAgent: agent}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, out.URL, nil)
	if err != nil {
		out.Failure = &Failure{Reason: ReasonProtocol, Err: err}
		return out
	}

	req.Header.Set("User-Agent", agent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		out.Duration = time.Since(start)
		out.Failure = classify(ctx, err)
		r.log.WithFields(logrus.Fields{"url": out.URL, "reason": out.Failure.Reason}).Debugf("probe failed: %v", err)
		return out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody))
	out.Duration = time.Since(start)
	if err != nil {
		out.Failure = classify(ctx, fmt.Errorf("reading response body for %s: %w", path, err))
		r.log.WithFields(logrus.Fields{"url": out.URL, "reason": out.Failure.Reason}).Debugf("body read failed: %v", err)
		return out
	}

	out.Status = resp.StatusCode
	out.Header = resp.Header
	out.Body = body
	return out
}

// Preflight requests the base URL once with each User-Agent and keeps the
// ones that receive a 2xx answer. The rotation is replaced by the survivors.
func (r *Requester) Preflight(ctx context.Context) ([]string, error) {
	var kept []string
	for _, ua := range r.UserAgents() {
		out := r.do(ctx, "", ua)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if out.Failure == nil && out.Status >= 200 && out.Status < 300 {
			kept = append(kept, ua)
			continue
		}
		r.log.WithField("user_agent", ua).Debugf("user agent rejected (status %d)", out.Status)
	}
	if len(kept) == 0 {
		return nil, ErrAllAgentsRejected
	}

	r.mu.Lock()
	r.agents = kept
	r.mu.Unlock()
	r.next.Store(0)
	return kept, nil
}
