// Package dom turns page structure into the indexed, line oriented text the agent
// shows to the model, and parses that text back when a model returns a subset.
package dom

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

const (
	// EmptyPage replaces the element block when a page has nothing to show.
	EmptyPage = "empty page"
	// CutoffMarker brackets element text to tell the model the list may be partial.
	CutoffMarker = "... Cut off - use extract content or scroll to get more ..."

	indexSeparator     = "[:]"
	contextPlaceholder = "_"
)

// DefaultIncludeAttributes are the attributes rendered when the caller does not
// configure its own list.
var DefaultIncludeAttributes = []string{
	"title", "type", "name", "role", "tabindex", "aria-label", "placeholder", "value", "alt", "aria-expanded",
}

// Render encodes a snapshot one node per line. Interactive nodes render as
// `<index>[:]<tag attr="v">text</tag>` with only the attributes named in
// includeAttributes, in that order. Context nodes render as `_[:]text`.
func Render(snapshot schemas.ElementSnapshot, includeAttributes []string) string {
	lines := make([]string, 0, len(snapshot.Nodes))
	for _, n := range snapshot.Nodes {
		lines = append(lines, RenderNode(n, includeAttributes))
	}
	return strings.Join(lines, "\n")
}

// RenderNode encodes a single node.
func RenderNode(n schemas.ElementNode, includeAttributes []string) string {
	text := collapseWhitespace(n.Text)
	if !n.Interactive || n.Index == nil {
		return contextPlaceholder + indexSeparator + text
	}

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(*n.Index))
	sb.WriteString(indexSeparator)
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	for _, name := range includeAttributes {
		v, ok := n.Attributes[name]
		if !ok {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(name)
		sb.WriteString(`="`)
		sb.WriteString(strings.ReplaceAll(collapseWhitespace(v), `"`, `'`))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	sb.WriteString(text)
	sb.WriteString("</")
	sb.WriteString(n.Tag)
	sb.WriteByte('>')
	return sb.String()
}

// WrapOptions controls how rendered element text is framed for a prompt.
type WrapOptions struct {
	// AlwaysMark brackets any non-empty block with the cutoff marker.
	AlwaysMark bool
	// MaxChars truncates the block on a line boundary when positive. A truncated
	// block is always marked.
	MaxChars int
}

// ForPrompt frames rendered element text for inclusion in a model prompt.
func ForPrompt(rendered string, opts WrapOptions) string {
	if strings.TrimSpace(rendered) == "" {
		return EmptyPage
	}

	truncated := false
	if opts.MaxChars > 0 && len(rendered) > opts.MaxChars {
		rendered = truncateLines(rendered, opts.MaxChars)
		truncated = true
	}

	if !opts.AlwaysMark && !truncated {
		return rendered
	}
	return CutoffMarker + "\n" + rendered + "\n" + CutoffMarker
}

// truncateLines keeps whole lines while the total stays within limit. At least
// one line is kept, cut to limit bytes on a rune boundary if it is itself too long.
func truncateLines(s string, limit int) string {
	lines := strings.Split(s, "\n")
	var sb strings.Builder
	for i, line := range lines {
		extra := len(line)
		if i > 0 {
			extra++
		}
		if sb.Len()+extra > limit {
			break
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	if sb.Len() > 0 {
		return sb.String()
	}

	first := lines[0]
	cut := 0
	for i := range first {
		if i > limit {
			break
		}
		cut = i
	}
	return first[:cut]
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
