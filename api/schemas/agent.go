package schemas

import (
	"strings"
	"time"
)

// -- Decision Schemas --

// CurrentState is the model's running commentary, threaded from one step to the
// next. Only Memory and NextGoal survive into the following step.
type CurrentState struct {
	EvaluationPreviousGoal string `json:"evaluation_previous_goal"`
	Memory                 string `json:"memory"`
	NextGoal               string `json:"next_goal"`
}

// ActionCall is one entry of a decision's action list, keyed by action name.
type ActionCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Index returns the element index parameter when the action targets an element.
func (a ActionCall) Index() (int, bool) {
	return a.IntParam("index")
}

// IntParam returns an integral parameter. Decoders hand numbers over as int,
// float64 or json.Number, so all three are accepted.
func (a ActionCall) IntParam(name string) (int, bool) {
	raw, ok := a.Params[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case interface{ Int64() (int64, error) }:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

// StringParam returns a string parameter, or "" when it is absent.
func (a ActionCall) StringParam(name string) string {
	if s, ok := a.Params[name].(string); ok {
		return s
	}
	return ""
}

// AgentDecision is the fully validated model output for one step.
type AgentDecision struct {
	CurrentState CurrentState `json:"current_state"`
	Actions      []ActionCall `json:"action"`
}

// ActionResult is the outcome of executing a single action. It is rendered into
// the next step's observation exactly once.
type ActionResult struct {
	ExtractedContent string `json:"extracted_content,omitempty"`
	Error            string `json:"error,omitempty"`
	IsDone           bool   `json:"is_done,omitempty"`      // Set for terminal actions.
	PageChanged      bool   `json:"page_changed,omitempty"` // Driver signal: new content appeared after the action.
}

// StepInfo locates a step within the run's budget. StepNumber is zero based.
type StepInfo struct {
	StepNumber int `json:"step_number"`
	MaxSteps   int `json:"max_steps"`
}

// StepRecord is the persisted trace of a single step.
type StepRecord struct {
	RunID      string         `json:"run_id"`
	Step       int            `json:"step"`
	URL        string         `json:"url"`
	Evaluation string         `json:"evaluation"`
	Memory     string         `json:"memory"`
	NextGoal   string         `json:"next_goal"`
	Actions    []ActionCall   `json:"actions"`
	Results    []ActionResult `json:"results"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}

// -- Message Schemas --

// Role identifies the author of a model message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates the content parts of a multi-part message.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"` // A data URL, e.g. data:image/png;base64,...
}

// Message is a provider neutral chat message. A message is either plain text
// (Content) or multi-part (Parts); multi-part wins when both are set.
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// IsMultiPart reports whether the message carries structured parts.
func (m Message) IsMultiPart() bool {
	return len(m.Parts) > 0
}

// Text returns the concatenated text of the message, ignoring images.
func (m Message) Text() string {
	if !m.IsMultiPart() {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Images returns the data URLs of all image parts.
func (m Message) Images() []string {
	var out []string
	for _, p := range m.Parts {
		if p.Type == PartImage {
			out = append(out, p.ImageURL)
		}
	}
	return out
}
