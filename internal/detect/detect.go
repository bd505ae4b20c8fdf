// Package detect finds leaked sensitive data (credentials, tokens, PII) in
// response bodies using an ordered registry of labeled patterns.
package detect

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Finding is one sensitive-data match. SourceURL is left empty by Detect and
// filled in by the caller that knows where the body came from.
type Finding struct {
	Label       string `json:"label"`
	MatchedText string `json:"matched_text"`
	SourceURL   string `json:"source_url"`
	Risk        int    `json:"risk"`
}

// Registry is an ordered set of rules. Order is the order findings are
// reported in for a single body.
type Registry struct {
	rules []Rule
}

// NewRegistry builds a registry from rules. A rule without a label or
// pattern is rejected.
func NewRegistry(rules ...Rule) (*Registry, error) {
	r := &Registry{}
	for _, rule := range rules {
		if err := r.Add(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a registry holding DefaultRules.
func DefaultRegistry() *Registry {
	return &Registry{rules: DefaultRules()}
}

// Add appends a rule. Must not be called once the registry is shared with a
// Detector that is in use.
func (r *Registry) Add(rule Rule) error {
	if rule.Label == "" {
		return fmt.Errorf("rule has no label")
	}
	if rule.Pattern == nil {
		return fmt.Errorf("rule %q has no pattern", rule.Label)
	}
	r.rules = append(r.rules, rule)
	return nil
}

// AddPattern compiles expr and appends it under label.
func (r *Registry) AddPattern(label, expr string, risk int) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compiling pattern for %q: %w", label, err)
	}
	return r.Add(Rule{Label: label, Pattern: re, Risk: risk})
}

// Labels returns the rule labels in registry order.
func (r *Registry) Labels() []string {
	labels := make([]string, len(r.rules))
	for i, rule := range r.rules {
		labels[i] = rule.Label
	}
	return labels
}

// Risk returns the risk weight of label, or 0 when unknown.
func (r *Registry) Risk(label string) int {
	for _, rule := range r.rules {
		if rule.Label == label {
			return rule.Risk
		}
	}
	return 0
}

// Detector scans bodies against a registry. It holds no mutable state and is
// safe for concurrent use.
type Detector struct {
	registry *Registry
}

// New returns a Detector over registry. A nil registry means DefaultRegistry.
func New(registry *Registry) *Detector {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Detector{registry: registry}
}

// Registry returns the registry the detector scans with.
func (d *Detector) Registry() *Registry {
	return d.registry
}

// Detect returns every non-overlapping match of every rule in body, grouped
// by rule in registry order. Invalid UTF-8 sequences are replaced before
// matching; binary bodies yield nothing.
func (d *Detector) Detect(body []byte) []Finding {
	if len(body) == 0 || isBinary(body) {
		return nil
	}
	text := strings.ToValidUTF8(string(body), "\uFFFD")

	var findings []Finding
	for _, rule := range d.registry.rules {
		for _, m := range rule.Pattern.FindAllString(text, -1) {
			if rule.Validate != nil && !rule.Validate(m) {
				continue
			}
			findings = append(findings, Finding{
				Label:       rule.Label,
				MatchedText: m,
				Risk:        rule.Risk,
			})
		}
	}
	return findings
}

// sniffLen matches the prefix net/http inspects when sniffing content types.
const sniffLen = 512

// isBinary reports whether body looks like binary data: a NUL byte in the
// leading bytes never appears in text encodings the detector cares about.
func isBinary(body []byte) bool {
	return bytes.IndexByte(body[:min(len(body), sniffLen)], 0) >= 0
}
