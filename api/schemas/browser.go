package schemas

import (
	"fmt"
)

// -- Browser State Schemas --

// Tab describes one open browser tab. Handles are opaque to the agent and only
// meaningful to the driver that produced them.
type Tab struct {
	Handle string `json:"handle"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// ElementNode is a single line of an element snapshot. Interactive nodes carry a
// numeric index the model can reference; context nodes carry visible text only.
type ElementNode struct {
	Index       *int              `json:"index,omitempty"`
	Tag         string            `json:"tag,omitempty"`
	Text        string            `json:"text"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Interactive bool              `json:"interactive"`
}

// NewInteractive builds an indexed node for an element the model can act on.
func NewInteractive(index int, tag, text string, attrs map[string]string) ElementNode {
	idx := index
	return ElementNode{
		Index:       &idx,
		Tag:         tag,
		Text:        text,
		Attributes:  attrs,
		Interactive: true,
	}
}

// NewContext builds a non-interactive text node.
func NewContext(text string) ElementNode {
	return ElementNode{Text: text}
}

// ElementSnapshot is the ordered list of nodes captured at one observation instant.
// Indices are only valid for the snapshot that issued them.
type ElementSnapshot struct {
	Nodes []ElementNode `json:"nodes"`
}

// Validate checks that every interactive node has an index, that no context node
// carries one, and that indices are unique.
func (s ElementSnapshot) Validate() error {
	seen := make(map[int]struct{}, len(s.Nodes))
	for i, n := range s.Nodes {
		switch {
		case n.Interactive && n.Index == nil:
			return fmt.Errorf("node %d is interactive but has no index", i)
		case !n.Interactive && n.Index != nil:
			return fmt.Errorf("node %d is not interactive but has index %d", i, *n.Index)
		case n.Index != nil:
			if _, dup := seen[*n.Index]; dup {
				return fmt.Errorf("duplicate element index %d", *n.Index)
			}
			seen[*n.Index] = struct{}{}
		}
	}
	return nil
}

// Lookup returns the interactive node with the given index.
func (s ElementSnapshot) Lookup(index int) (ElementNode, bool) {
	for _, n := range s.Nodes {
		if n.Index != nil && *n.Index == index {
			return n, true
		}
	}
	return ElementNode{}, false
}

// InteractiveCount reports how many nodes carry an index.
func (s ElementSnapshot) InteractiveCount() int {
	count := 0
	for _, n := range s.Nodes {
		if n.Interactive {
			count++
		}
	}
	return count
}

// BrowserState is everything the agent knows about the browser at one instant.
// It is created once per step by the driver and never mutated afterwards.
type BrowserState struct {
	URL        string          `json:"url"`
	Tabs       []Tab           `json:"tabs"`
	Elements   ElementSnapshot `json:"elements"`
	Screenshot string          `json:"screenshot,omitempty"` // Base64 encoded PNG, empty when not captured.
}

// HasScreenshot reports whether a screenshot was captured with this state.
func (b *BrowserState) HasScreenshot() bool {
	return b != nil && b.Screenshot != ""
}

// CaptureOptions tunes what the driver collects during an observation.
type CaptureOptions struct {
	Screenshot bool `json:"screenshot"`
}

// KeyEventData is one key chord: the main key plus the modifiers held with it.
type KeyEventData struct {
	// Key is a single character or a chromedp/kb key value such as kb.Enter.
	Key       string
	Modifiers KeyModifier
}

// KeyModifier is a bitmask matching the CDP input.DispatchKeyEvent modifiers field.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1
	ModCtrl  KeyModifier = 2
	ModMeta  KeyModifier = 4
	ModShift KeyModifier = 8
)
