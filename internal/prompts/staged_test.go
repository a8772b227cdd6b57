package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestBuildEvaluationPrompt(t *testing.T) {
	prev := &schemas.BrowserState{URL: "about:blank"}
	results := []schemas.ActionResult{{ExtractedContent: "Navigated to https://google.com"}}

	msg := BuildEvaluationPrompt(prev, "open google", googleState(), results, DefaultObservationOptions())

	assert.Equal(t, schemas.RoleSystem, msg.Role)
	assert.Contains(t, msg.Content, "Previous goal: open google")
	assert.Contains(t, msg.Content, "Previous url: about:blank")
	assert.Contains(t, msg.Content, "Current url: https://google.com")
	assert.Contains(t, msg.Content, "Action result 1/1: Navigated to https://google.com")
	assert.Contains(t, msg.Content, `"evaluation_previous_goal": "Success|Failed|Unknown`)
	assert.NotContains(t, msg.Content, `"action"`, "the evaluation stage must not ask for actions")
}

func TestBuildEvaluationPrompt_FirstStep(t *testing.T) {
	msg := BuildEvaluationPrompt(nil, "", googleState(), nil, DefaultObservationOptions())
	assert.Contains(t, msg.Content, "Previous goal: none, this is the first step")
	assert.NotContains(t, msg.Content, "Previous url:")
}

func TestStricterEvaluationNote(t *testing.T) {
	note := StricterEvaluationNote()
	assert.Equal(t, schemas.RoleUser, note.Role)
	assert.Contains(t, note.Content, "current_state")
}

func TestBuildFilterPrompt(t *testing.T) {
	msg := BuildFilterPrompt("search for laptop", googleState(), DefaultObservationOptions())

	assert.Equal(t, schemas.RoleSystem, msg.Role)
	assert.Contains(t, msg.Content, "Next goal: search for laptop")
	assert.Contains(t, msg.Content, `0[:]<textarea title="Search" name="q"></textarea>`)
	assert.Contains(t, msg.Content, "index[:]<element_type>element_text</element_type>")
	assert.NotContains(t, msg.Content, "Available tabs:")

	noGoal := BuildFilterPrompt("", googleState(), DefaultObservationOptions())
	assert.Contains(t, noGoal.Content, "Next goal: not set yet")
}

func TestBuildActionPrompt(t *testing.T) {
	eval := schemas.CurrentState{EvaluationPreviousGoal: "Success - google is open"}
	msg := BuildActionPrompt(eval, "0[:]<textarea></textarea>", "type the query", "opened google")

	assert.Equal(t, schemas.RoleSystem, msg.Role)
	lines := strings.Split(msg.Content, "\n")
	assert.Equal(t, "Evaluation of the previous goal: Success - google is open", lines[0])
	assert.Equal(t, "Memory: opened google", lines[1])
	assert.Equal(t, "Next goal: type the query", lines[2])
	assert.Contains(t, msg.Content, "Relevant interactive elements for the next goal:\n0[:]<textarea></textarea>")

	empty := BuildActionPrompt(schemas.CurrentState{}, "", "", "")
	assert.Contains(t, empty.Content, "Evaluation of the previous goal: Unknown")
	assert.Contains(t, empty.Content, "Memory: nothing yet")
	assert.Contains(t, empty.Content, "Relevant interactive elements for the next goal:\nempty page")
}
