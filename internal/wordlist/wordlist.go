package wordlist

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmpty is returned when no candidate path survives loading.
var ErrEmpty = errors.New("path list is empty")

// Load returns the candidate paths to probe. dictionary is the main list
// (empty means the embedded API dictionary); include adds the entries of a
// second file and exclude removes every entry listed in a third. Blank lines
// and # comments are skipped and the result is de-duplicated in first-seen
// order.
func Load(dictionary, include, exclude string) ([]string, error) {
	raw := embeddedDictionary
	if dictionary != "" {
		data, err := os.ReadFile(dictionary)
		if err != nil {
			return nil, fmt.Errorf("reading dictionary %s: %w", dictionary, err)
		}
		raw = string(data)
	}
	paths := parse(raw)

	if include != "" {
		extra, err := LoadFile(include)
		if err != nil {
			return nil, err
		}
		paths = dedup(append(paths, extra...))
	}

	if exclude != "" {
		drop, err := LoadFile(exclude)
		if err != nil {
			return nil, err
		}
		skip := make(map[string]struct{}, len(drop))
		for _, d := range drop {
			skip[d] = struct{}{}
		}
		kept := paths[:0]
		for _, p := range paths {
			if _, ok := skip[p]; !ok {
				kept = append(kept, p)
			}
		}
		paths = kept
	}

	if len(paths) == 0 {
		return nil, ErrEmpty
	}
	return paths, nil
}

// LoadFile reads a one-entry-per-line file with the same rules as Load.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return parse(string(data)), nil
}

// LoadUserAgents returns the User-Agent rotation: the entries of path plus
// extra, or the embedded browser list when both are empty.
func LoadUserAgents(path string, extra []string) ([]string, error) {
	var agents []string
	if path != "" {
		fromFile, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if len(fromFile) == 0 {
			return nil, fmt.Errorf("user agent file %s is empty", path)
		}
		agents = fromFile
	}
	for _, ua := range extra {
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	if len(agents) == 0 {
		agents = parse(embeddedUserAgents)
	}
	return dedup(agents), nil
}

func parse(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedup(out)
}

func dedup(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
