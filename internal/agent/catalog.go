// internal/agent/catalog.go
package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// ParamType is the JSON type an action parameter must have.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// ParamSpec describes one parameter of an action.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
}

// ActionSpec describes an action the model may request.
type ActionSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
	// Terminal actions end the run; they are handled by the pipeline, not the driver.
	Terminal bool
}

// Catalog is the read-only set of actions offered to the model. It may be
// shared between concurrent runs.
type Catalog struct {
	specs  []ActionSpec
	byName map[string]int
}

// Action names understood by the browser driver.
const (
	ActionDone         = "done"
	ActionSearchGoogle = "search_google"
	ActionGoToURL      = "go_to_url"
	ActionGoBack       = "go_back"
	ActionClickElement = "click_element"
	ActionInputText    = "input_text"
	ActionSendKeys     = "send_keys"
	ActionScrollDown   = "scroll_down"
	ActionScrollUp     = "scroll_up"
	ActionOpenNewTab   = "open_new_tab"
	ActionSwitchTab    = "switch_tab"
	ActionExtractPage  = "extract_page_content"
	ActionWait         = "wait"
)

// NewCatalog builds a catalog, rejecting duplicate action or parameter names.
func NewCatalog(specs ...ActionSpec) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("action spec without a name")
		}
		if _, dup := c.byName[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate action %q", spec.Name)
		}
		seen := make(map[string]bool, len(spec.Params))
		for _, p := range spec.Params {
			if seen[p.Name] {
				return nil, fmt.Errorf("action %q declares parameter %q twice", spec.Name, p.Name)
			}
			seen[p.Name] = true
		}
		c.byName[spec.Name] = len(c.specs)
		c.specs = append(c.specs, spec)
	}
	return c, nil
}

// DefaultCatalog returns the browser actions plus the terminal done action.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		ActionSpec{Name: ActionDone, Description: "Complete the task and report the final result to the user", Terminal: true,
			Params: []ParamSpec{{Name: "text", Type: ParamString, Required: true}}},
		ActionSpec{Name: ActionSearchGoogle, Description: "Search Google in the current tab",
			Params: []ParamSpec{{Name: "query", Type: ParamString, Required: true}}},
		ActionSpec{Name: ActionGoToURL, Description: "Navigate to URL in the current tab",
			Params: []ParamSpec{{Name: "url", Type: ParamString, Required: true}}},
		ActionSpec{Name: ActionGoBack, Description: "Go back to the previous page"},
		ActionSpec{Name: ActionClickElement, Description: "Click the element with the given index",
			Params: []ParamSpec{{Name: "index", Type: ParamInteger, Required: true}}},
		ActionSpec{Name: ActionInputText, Description: "Type text into the input element with the given index",
			Params: []ParamSpec{{Name: "index", Type: ParamInteger, Required: true}, {Name: "text", Type: ParamString, Required: true}}},
		ActionSpec{Name: ActionSendKeys, Description: "Send keys or shortcuts such as Enter, Escape, Control+a to the page",
			Params: []ParamSpec{{Name: "keys", Type: ParamString, Required: true}}},
		ActionSpec{Name: ActionScrollDown, Description: "Scroll down the page by pixel amount, or one page if amount is not given",
			Params: []ParamSpec{{Name: "amount", Type: ParamInteger}}},
		ActionSpec{Name: ActionScrollUp, Description: "Scroll up the page by pixel amount, or one page if amount is not given",
			Params: []ParamSpec{{Name: "amount", Type: ParamInteger}}},
		ActionSpec{Name: ActionOpenNewTab, Description: "Open a new tab, optionally at a URL, and switch to it",
			Params: []ParamSpec{{Name: "url", Type: ParamString}}},
		ActionSpec{Name: ActionSwitchTab, Description: "Switch to the tab with the given page_id",
			Params: []ParamSpec{{Name: "page_id", Type: ParamInteger, Required: true}}},
		ActionSpec{Name: ActionExtractPage, Description: "Extract the text content of the current page"},
		ActionSpec{Name: ActionWait, Description: "Wait for the page to settle, for the given number of seconds (default 3)",
			Params: []ParamSpec{{Name: "seconds", Type: ParamInteger}}},
	)
	if err != nil {
		panic(fmt.Sprintf("invalid default action catalog: %v", err))
	}
	return c
}

// Lookup returns the spec registered under name.
func (c *Catalog) Lookup(name string) (ActionSpec, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ActionSpec{}, false
	}
	return c.specs[i], true
}

// Names returns the action names in registration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.specs))
	for i, s := range c.specs {
		names[i] = s.Name
	}
	return names
}

// IsTerminal reports whether name is a terminal action.
func (c *Catalog) IsTerminal(name string) bool {
	spec, ok := c.Lookup(name)
	return ok && spec.Terminal
}

// Describe renders the catalog for the system prompt, one action per line:
//
//	name: description: {"param": {"type": "string"}}
func (c *Catalog) Describe() string {
	lines := make([]string, len(c.specs))
	for i, s := range c.specs {
		lines[i] = s.Name + ": " + s.Description + ": " + s.paramSchema()
	}
	return strings.Join(lines, "\n")
}

func (s ActionSpec) paramSchema() string {
	if len(s.Params) == 0 {
		return "{}"
	}
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		if p.Required {
			parts[i] = fmt.Sprintf("%s: {\"type\": %s}", strconv.Quote(p.Name), strconv.Quote(string(p.Type)))
		} else {
			parts[i] = fmt.Sprintf("%s: {\"type\": %s, \"optional\": true}", strconv.Quote(p.Name), strconv.Quote(string(p.Type)))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Validate checks call against its spec: the name must be known, every required
// parameter present, no undeclared parameters, and every value of the declared type.
func (c *Catalog) Validate(call schemas.ActionCall) error {
	spec, ok := c.Lookup(call.Name)
	if !ok {
		return &schemas.UnknownActionError{Name: call.Name}
	}

	declared := make(map[string]ParamSpec, len(spec.Params))
	for _, p := range spec.Params {
		declared[p.Name] = p
		if _, present := call.Params[p.Name]; p.Required && !present {
			return fmt.Errorf("action %q: missing required parameter %q", call.Name, p.Name)
		}
	}

	// Report unknown parameters in a stable order.
	var unknown []string
	for name := range call.Params {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("action %q: unknown parameter %q", call.Name, unknown[0])
	}

	for _, p := range spec.Params {
		v, present := call.Params[p.Name]
		if !present {
			continue
		}
		if !hasType(v, p.Type) {
			return fmt.Errorf("action %q: parameter %q must be %s, got %s", call.Name, p.Name, p.Type, describeValue(v))
		}
	}
	return nil
}

func hasType(v any, t ParamType) bool {
	switch t {
	case ParamString:
		_, ok := v.(string)
		return ok
	case ParamBoolean:
		_, ok := v.(bool)
		return ok
	case ParamInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case ParamNumber:
		switch n := v.(type) {
		case int, int32, int64, float32, float64:
			return true
		case json.Number:
			_, err := n.Float64()
			return err == nil
		}
		return false
	default:
		return false
	}
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, int, int32, int64, float32, float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
