package dom

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var (
	// interactiveLineRegex matches `12[:]<button type="submit">Go</button>`.
	interactiveLineRegex = regexp.MustCompile(`^(\d+)\[:\]<([a-zA-Z][a-zA-Z0-9-]*)((?:\s+[^\s=>]+="[^"]*")*)\s*>(.*)</([a-zA-Z][a-zA-Z0-9-]*)>$`)
	// contextLineRegex matches `_[:]some text`.
	contextLineRegex = regexp.MustCompile(`^_\[:\](.*)$`)
	attrRegex        = regexp.MustCompile(`([^\s=>]+)="([^"]*)"`)
)

// ParseRendered reads element lines in the Render format back into nodes. Lines
// that do not match either shape, including the cutoff marker and list bullets a
// model might add, are skipped. Duplicate indices keep their first occurrence.
func ParseRendered(text string) ([]schemas.ElementNode, error) {
	var nodes []schemas.ElementNode
	seen := make(map[int]struct{})

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimLeft(line, "-* ")
		if line == "" || line == CutoffMarker {
			continue
		}

		if m := interactiveLineRegex.FindStringSubmatch(line); m != nil {
			if m[2] != m[5] {
				continue
			}
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("invalid element index %q: %w", m[1], err)
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}

			var attrs map[string]string
			for _, am := range attrRegex.FindAllStringSubmatch(m[3], -1) {
				if attrs == nil {
					attrs = make(map[string]string)
				}
				attrs[am[1]] = am[2]
			}
			nodes = append(nodes, schemas.NewInteractive(idx, m[2], m[4], attrs))
			continue
		}

		if m := contextLineRegex.FindStringSubmatch(line); m != nil {
			nodes = append(nodes, schemas.NewContext(m[1]))
		}
	}
	return nodes, nil
}

// Resolve maps parsed nodes back onto the authoritative snapshot. Interactive
// nodes are replaced by the snapshot's own record for that index, and indices
// the snapshot does not contain are dropped. Context nodes survive only when
// the snapshot has a context line with the same text (whitespace collapsed).
// The second return value counts the interactive nodes that survived.
func Resolve(parsed []schemas.ElementNode, source schemas.ElementSnapshot) (schemas.ElementSnapshot, int) {
	contexts := make(map[string]schemas.ElementNode)
	for _, n := range source.Nodes {
		if !n.Interactive {
			key := collapseSpace(n.Text)
			if _, ok := contexts[key]; !ok {
				contexts[key] = n
			}
		}
	}

	out := schemas.ElementSnapshot{Nodes: make([]schemas.ElementNode, 0, len(parsed))}
	resolved := 0
	for _, n := range parsed {
		if !n.Interactive || n.Index == nil {
			if orig, ok := contexts[collapseSpace(n.Text)]; ok {
				out.Nodes = append(out.Nodes, orig)
			}
			continue
		}
		orig, ok := source.Lookup(*n.Index)
		if !ok {
			continue
		}
		out.Nodes = append(out.Nodes, orig)
		resolved++
	}
	return out, resolved
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
