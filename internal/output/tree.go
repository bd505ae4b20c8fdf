package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/maxvaer/apiprobe/internal/report"
)

type endpointNode struct {
	name     string
	entry    *report.Entry
	children []*endpointNode
}

func (n *endpointNode) child(name string) *endpointNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	c := &endpointNode{name: name}
	n.children = append(n.children, c)
	return c
}

// PrintTree renders kept entries as a path tree. Nodes that were probed
// directly show their status and finding count, e.g.
//
//	└── api
//	    └── v1
//	        ├── keys (200, 3 findings)
//	        └── users (200)
func PrintTree(w io.Writer, entries []report.Entry) {
	if len(entries) == 0 {
		return
	}
	sorted := make([]report.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	root := &endpointNode{}
	for i := range sorted {
		p := strings.Trim(sorted[i].Path, "/")
		if p == "" {
			continue
		}
		node := root
		for _, part := range strings.Split(p, "/") {
			node = node.child(part)
		}
		if node.entry == nil {
			node.entry = &sorted[i]
		}
	}
	if len(root.children) == 0 {
		return
	}

	fmt.Fprintf(w, "\nEndpoints:\n")
	printEndpoints(w, root, "  ")
}

func printEndpoints(w io.Writer, node *endpointNode, prefix string) {
	for i, c := range node.children {
		last := i == len(node.children)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		fmt.Fprintf(w, "%s%s%s%s\n", prefix, branch, c.name, describe(c.entry))
		printEndpoints(w, c, prefix+indent)
	}
}

func describe(e *report.Entry) string {
	if e == nil {
		return ""
	}
	switch n := len(e.Findings); n {
	case 0:
		return fmt.Sprintf(" (%d)", e.Status)
	case 1:
		return fmt.Sprintf(" (%d, 1 finding)", e.Status)
	default:
		return fmt.Sprintf(" (%d, %d findings)", e.Status, n)
	}
}
