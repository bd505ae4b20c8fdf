// Package reqparse reads a raw HTTP request (for example a Burp Suite export)
// and turns it into scan settings: base URL, headers and bearer token.
package reqparse

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
)

// Template is what a captured request contributes to a scan.
type Template struct {
	Method string
	// BaseURL is scheme, host and the directory of the request path, so
	// dictionary paths are probed next to the captured endpoint.
	BaseURL     string
	Headers     map[string]string
	BearerToken string
	UserAgent   string
}

// skipped headers are either set per request by the prober or meaningless
// when replayed against other paths.
var skipped = map[string]bool{
	"host":              true,
	"content-length":    true,
	"accept-encoding":   true,
	"connection":        true,
	"transfer-encoding": true,
	"authorization":     true,
	"user-agent":        true,
}

// ParseFile reads the request at path.
func ParseFile(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening request file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB lines for large cookies

	if !sc.Scan() {
		return nil, fmt.Errorf("request file is empty")
	}
	line := strings.TrimSpace(sc.Text())
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid request line: %q", line)
	}
	method, target := parts[0], parts[1]
	proto := ""
	if len(parts) > 2 {
		proto = strings.ToUpper(parts[2])
	}

	raw := make(map[string]string)
	var order []string
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := raw[key]; !seen {
			order = append(order, key)
		}
		raw[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}

	t := &Template{Method: method, Headers: make(map[string]string)}
	var host string
	for _, key := range order {
		value := raw[key]
		switch strings.ToLower(key) {
		case "host":
			host = value
		case "authorization":
			if token, ok := bearer(value); ok {
				t.BearerToken = token
			} else {
				t.Headers[key] = value
			}
		case "user-agent":
			t.UserAgent = value
		}
		if !skipped[strings.ToLower(key)] {
			t.Headers[key] = value
		}
	}

	base, err := baseURL(target, host, proto)
	if err != nil {
		return nil, err
	}
	t.BaseURL = base
	return t, nil
}

func bearer(value string) (string, bool) {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// baseURL rebuilds the URL the request was sent to and strips its last
// path segment and query.
func baseURL(target, host, proto string) (string, error) {
	var u *url.URL
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		// Absolute-form request line, as sent to proxies.
		parsed, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid URL in request line: %w", err)
		}
		u = parsed
	} else {
		if host == "" {
			return "", fmt.Errorf("request file missing Host header")
		}
		// Burp exports rarely say which scheme was used; assume TLS unless
		// the request went to port 80.
		scheme := "https"
		if strings.HasPrefix(proto, "HTTP/1") && strings.HasSuffix(host, ":80") {
			scheme = "http"
		}
		p, _, _ := strings.Cut(target, "?")
		u = &url.URL{Scheme: scheme, Host: host, Path: p}
	}

	dir := path.Dir(u.Path)
	if strings.HasSuffix(u.Path, "/") {
		dir = strings.TrimSuffix(u.Path, "/")
	}
	if dir == "/" || dir == "." {
		dir = ""
	}
	return u.Scheme + "://" + u.Host + dir, nil
}
