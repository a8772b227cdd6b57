package dom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// IndexAttribute is stamped onto interactive elements by the in-page indexer. Its
// value is the element's highlight index for the current observation.
const IndexAttribute = "data-webpilot-index"

// skippedAtoms are subtrees that never contribute visible text.
var skippedAtoms = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// Extract builds an element snapshot from serialized page HTML. Elements carrying
// IndexAttribute become interactive nodes; any other visible text becomes a
// context node. Document order is preserved.
func Extract(r io.Reader) (schemas.ElementSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return schemas.ElementSnapshot{}, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	w := &walker{doc: doc}
	for _, n := range root.Nodes {
		w.walk(n)
	}

	snapshot := schemas.ElementSnapshot{Nodes: w.nodes}
	if err := snapshot.Validate(); err != nil {
		return schemas.ElementSnapshot{}, fmt.Errorf("extracted snapshot is inconsistent: %w", err)
	}
	return snapshot, nil
}

// ExtractString is a convenience wrapper around Extract.
func ExtractString(page string) (schemas.ElementSnapshot, error) {
	return Extract(strings.NewReader(page))
}

type walker struct {
	doc   *goquery.Document
	nodes []schemas.ElementNode
}

func (w *walker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if text := collapseWhitespace(n.Data); text != "" {
			w.nodes = append(w.nodes, schemas.NewContext(text))
		}
		return
	case html.ElementNode:
		if skippedAtoms[n.DataAtom] || isHidden(n) {
			return
		}
		if idx, ok := highlightIndex(n); ok {
			text := collapseWhitespace(w.doc.FindNodes(n).Text())
			w.nodes = append(w.nodes, schemas.NewInteractive(idx, n.Data, text, attributes(n)))
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func highlightIndex(n *html.Node) (int, bool) {
	for _, a := range n.Attr {
		if a.Key != IndexAttribute {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(a.Val))
		if err != nil || idx < 0 {
			return 0, false
		}
		return idx, true
	}
	return 0, false
}

func attributes(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if a.Key == IndexAttribute {
			continue
		}
		attrs[a.Key] = a.Val
	}
	return attrs
}

// isHidden catches the static hiding hints available in serialized HTML. Layout
// based visibility is decided by the in-page indexer before serialization.
func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(a.Val, "true") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		case "type":
			if n.DataAtom == atom.Input && strings.EqualFold(a.Val, "hidden") {
				return true
			}
		}
	}
	return false
}
