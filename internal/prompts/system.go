// Package prompts composes the messages sent to the model at each step. Every
// function here is pure: the same inputs always produce the same messages, apart
// from the time stamp passed to BuildSystemPrompt.
package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// TimeLayout formats the current time embedded in the system prompt.
const TimeLayout = "2006-01-02 15:04"

// BuildSystemPrompt renders the fixed rule set, the input format description and
// the caller supplied action catalog.
func BuildSystemPrompt(actionCatalog string, currentTime time.Time, maxActionsPerStep int) schemas.Message {
	var sb strings.Builder
	sb.WriteString(agentIntro)
	sb.WriteString("\n\nCurrent date and time: ")
	sb.WriteString(currentTime.Format(TimeLayout))
	sb.WriteString("\n\n")
	sb.WriteString(inputFormat)
	sb.WriteString("\n\n")
	sb.WriteString(strings.Join(importantRules, "\n\n"))
	fmt.Fprintf(&sb, "\n   - use maximum %d actions per sequence", maxActionsPerStep)
	sb.WriteString("\n\nFunctions:\n")
	sb.WriteString(actionCatalog)
	sb.WriteString("\n\n")
	sb.WriteString(systemOutro)

	return schemas.Message{Role: schemas.RoleSystem, Content: sb.String()}
}

// BuildTaskPrompt states the run's ultimate task.
func BuildTaskPrompt(task string) schemas.Message {
	content := fmt.Sprintf("Your ultimate task is: %s. If you achieved your ultimate task, stop everything and use the done action in the next step to complete the task. If not, continue as usual.", task)
	return schemas.Message{Role: schemas.RoleUser, Content: content}
}

// BuildMemoryPrompt carries the model's memory from the previous step.
func BuildMemoryPrompt(memory string) schemas.Message {
	return schemas.Message{
		Role:    schemas.RoleUser,
		Content: "Memory from previous steps:\n" + memory,
	}
}

// BuildCorrectionPrompt tells the model its previous reply was rejected and why.
func BuildCorrectionPrompt(parseErr error) schemas.Message {
	reason := "unknown error"
	if parseErr != nil {
		reason = parseErr.Error()
	}
	content := fmt.Sprintf(`Your previous response could not be parsed: %s
Respond again with a single JSON object containing exactly the keys "current_state" and "action", as described in the system message. "action" must be a non-empty list where each item has exactly one action name. Do not add any other text.`, reason)
	return schemas.Message{Role: schemas.RoleUser, Content: content}
}
