package prompts

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/dom"
)

// DefaultMaxErrorLength is the number of trailing error characters shown to the model.
const DefaultMaxErrorLength = 400

// ObservationOptions carries the per-run rendering settings.
type ObservationOptions struct {
	IncludeAttributes []string
	MaxErrorLength    int
	Wrap              dom.WrapOptions
}

// DefaultObservationOptions mirrors the agent's default rendering.
func DefaultObservationOptions() ObservationOptions {
	return ObservationOptions{
		IncludeAttributes: dom.DefaultIncludeAttributes,
		MaxErrorLength:    DefaultMaxErrorLength,
		Wrap:              dom.WrapOptions{AlwaysMark: true},
	}
}

// BuildObservationPrompt renders the current browser state, the optional previous
// state and goal, and the results of the last step's actions. A state carrying a
// screenshot produces a multi-part message.
func BuildObservationPrompt(
	state *schemas.BrowserState,
	previousState *schemas.BrowserState,
	previousGoal string,
	results []schemas.ActionResult,
	stepInfo *schemas.StepInfo,
	opts ObservationOptions,
) schemas.Message {
	var sb strings.Builder
	sb.WriteString("\n")
	if stepInfo != nil {
		fmt.Fprintf(&sb, "Current step: %d/%d", stepInfo.StepNumber+1, stepInfo.MaxSteps)
	}
	sb.WriteString("\n")
	writeState(&sb, "Current", "current", state, true, opts)

	if previousState != nil {
		sb.WriteString("\n")
		writeState(&sb, "Previous", "previous", previousState, false, opts)
	}
	if previousGoal != "" {
		sb.WriteString("\nPrevious goal: ")
		sb.WriteString(previousGoal)
		sb.WriteString("\n")
	}

	writeResults(&sb, results, opts.MaxErrorLength)

	text := sb.String()
	if !state.HasScreenshot() {
		return schemas.Message{Role: schemas.RoleUser, Content: text}
	}
	return schemas.Message{
		Role: schemas.RoleUser,
		Parts: []schemas.ContentPart{
			{Type: schemas.PartText, Text: text},
			{Type: schemas.PartImage, ImageURL: "data:image/png;base64," + state.Screenshot},
		},
	}
}

// RenderElements renders a snapshot framed for a prompt.
func RenderElements(snapshot schemas.ElementSnapshot, opts ObservationOptions) string {
	return dom.ForPrompt(dom.Render(snapshot, opts.IncludeAttributes), opts.Wrap)
}

// RenderTabs lists tabs one per line with the page_id used by switch_tab.
func RenderTabs(tabs []schemas.Tab) string {
	if len(tabs) == 0 {
		return "[]"
	}
	lines := make([]string, len(tabs))
	for i, t := range tabs {
		lines[i] = fmt.Sprintf("- page_id=%d, url=%s, title=%q", i, t.URL, t.Title)
	}
	return strings.Join(lines, "\n")
}

// TruncateError keeps the trailing maxLen runes of msg behind an ellipsis.
func TruncateError(msg string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxErrorLength
	}
	runes := []rune(msg)
	if len(runes) > maxLen {
		runes = runes[len(runes)-maxLen:]
	}
	return "..." + string(runes)
}

func writeState(sb *strings.Builder, label, view string, state *schemas.BrowserState, withTabs bool, opts ObservationOptions) {
	if state == nil {
		state = &schemas.BrowserState{}
	}
	fmt.Fprintf(sb, "%s url: %s\n", label, state.URL)
	if withTabs {
		sb.WriteString("Available tabs:\n")
		sb.WriteString(RenderTabs(state.Tabs))
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "Interactive elements from %s page view:\n", view)
	sb.WriteString(RenderElements(state.Elements, opts))
	sb.WriteString("\n")
}

func writeResults(sb *strings.Builder, results []schemas.ActionResult, maxErrorLength int) {
	n := len(results)
	for i, r := range results {
		if r.ExtractedContent != "" {
			fmt.Fprintf(sb, "\nAction result %d/%d: %s", i+1, n, r.ExtractedContent)
		}
		if r.Error != "" {
			fmt.Fprintf(sb, "\nAction error %d/%d: %s", i+1, n, TruncateError(r.Error, maxErrorLength))
		}
	}
}
