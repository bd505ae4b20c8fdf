// Package triage maps a probe outcome to a disposition using an ordered rule
// table. The first matching rule wins.
package triage

import "fmt"

// Disposition is what the scan keeps for one probed path.
type Disposition int

const (
	Discard Disposition = iota
	KeepWithFindings
	KeepURLOnly
	CountError
)

// Dispositions lists every disposition in reporting order.
var Dispositions = []Disposition{KeepWithFindings, KeepURLOnly, Discard, CountError}

func (d Disposition) String() string {
	switch d {
	case KeepWithFindings:
		return "keep_with_findings"
	case KeepURLOnly:
		return "keep_url_only"
	case Discard:
		return "discard"
	case CountError:
		return "count_error"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// MarshalText renders the disposition by name so it can key JSON maps.
func (d Disposition) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (d *Disposition) UnmarshalText(text []byte) error {
	for _, c := range Dispositions {
		if c.String() == string(text) {
			*d = c
			return nil
		}
	}
	return fmt.Errorf("unknown disposition %q", text)
}

// Outcome is the part of a probe result triage looks at.
type Outcome struct {
	Status  int
	Failed  bool
	HasBody bool
}

// Rule is one row of the table. When Scan is set the body must go through
// the detector and Resolve picks OnFindings or OnClean; otherwise the row's
// Disposition is final.
type Rule struct {
	Name        string
	Match       func(o Outcome) bool
	Disposition Disposition
	Scan        bool
	OnFindings  Disposition
	OnClean     Disposition
}

// Resolve returns the rule's disposition given whether the body produced
// findings. found is ignored for rules that do not scan.
func (r Rule) Resolve(found bool) Disposition {
	if !r.Scan {
		return r.Disposition
	}
	if found {
		return r.OnFindings
	}
	return r.OnClean
}

// Fallback selects how statuses without an explicit row are handled.
type Fallback int

const (
	// FallbackRecord keeps the URL and status even when the body is clean.
	FallbackRecord Fallback = iota
	// FallbackStrict handles other statuses exactly like 200.
	FallbackStrict
)

// ParseFallback converts a flag value into a Fallback.
func ParseFallback(s string) (Fallback, error) {
	switch s {
	case "", "record":
		return FallbackRecord, nil
	case "strict":
		return FallbackStrict, nil
	default:
		return 0, fmt.Errorf("unknown fallback %q (want record or strict)", s)
	}
}

func (f Fallback) String() string {
	if f == FallbackStrict {
		return "strict"
	}
	return "record"
}

// Rule names.
const (
	RuleTransportFailure = "transport-failure"
	RuleOK               = "ok"
	RuleForbidden        = "forbidden"
	RuleNotFound         = "not-found"
	RuleServerError      = "server-error"
	RuleFallback         = "fallback"
)

func status(code int) func(Outcome) bool {
	return func(o Outcome) bool { return o.Status == code }
}

// Rules returns the table rows top to bottom. Explicit status rows come
// before the fallback so boundary codes never reach it.
func Rules(fallback Fallback) []Rule {
	onClean := KeepWithFindings
	if fallback == FallbackStrict {
		onClean = Discard
	}
	return []Rule{
		{Name: RuleTransportFailure, Match: func(o Outcome) bool { return o.Failed }, Disposition: CountError},
		{Name: RuleOK, Match: status(200), Scan: true, OnFindings: KeepWithFindings, OnClean: Discard},
		{Name: RuleForbidden, Match: status(403), Disposition: KeepURLOnly},
		{Name: RuleNotFound, Match: status(404), Disposition: Discard},
		{Name: RuleServerError, Match: func(o Outcome) bool { return o.Status >= 500 && o.Status <= 599 }, Disposition: CountError},
		{Name: RuleFallback, Match: func(Outcome) bool { return true }, Scan: true, OnFindings: KeepWithFindings, OnClean: onClean},
	}
}

// Table evaluates rules in order.
type Table struct {
	rules    []Rule
	fallback Fallback
}

// NewTable builds the standard table with the given fallback policy.
func NewTable(fallback Fallback) *Table {
	return &Table{rules: Rules(fallback), fallback: fallback}
}

// Fallback returns the table's fallback policy.
func (t *Table) Fallback() Fallback { return t.fallback }

// Classify returns the first rule matching o. The last row matches
// everything, so a rule is always returned. A scanning rule is returned with
// Scan cleared when the body is empty, since there is nothing to detect.
func (t *Table) Classify(o Outcome) Rule {
	for _, r := range t.rules {
		if !r.Match(o) {
			continue
		}
		if r.Scan && !o.HasBody {
			r.Scan = false
			r.Disposition = r.OnClean
		}
		return r
	}
	// Unreachable with the standard rows.
	return Rule{Name: RuleFallback, Disposition: Discard}
}
