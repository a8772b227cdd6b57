package prompts

import (
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

const evaluationIntro = `You are evaluating the progress of a browser automation agent. Compare the page before and after the agent's last actions and judge whether the previous goal was achieved. The website is the ground truth: do not trust the action results alone.`

const evaluationFormat = `Respond with valid JSON in exactly this format and nothing else:
{
  "current_state": {
    "evaluation_previous_goal": "Success|Failed|Unknown - short reason",
    "memory": "What has been done and what you need to remember until the end of the task",
    "next_goal": "What needs to be done with the next actions"
  }
}`

const filterIntro = `You are selecting the page elements a browser automation agent needs for its next goal. From the element list below, return only the lines relevant to the goal, plus any "_[:]" context lines needed to understand them.`

const filterFormat = `Copy each relevant line exactly as it appears, one per line, in the same format:
index[:]<element_type>element_text</element_type>
_[:]context text
Do not renumber, rewrite or explain anything. Return nothing but the lines.`

// BuildEvaluationPrompt asks only whether the previous goal was met. It is the
// first stage of a staged pipeline.
func BuildEvaluationPrompt(
	previousState *schemas.BrowserState,
	previousGoal string,
	currentState *schemas.BrowserState,
	results []schemas.ActionResult,
	opts ObservationOptions,
) schemas.Message {
	var sb strings.Builder
	sb.WriteString(evaluationIntro)
	sb.WriteString("\n\nPrevious goal: ")
	if previousGoal == "" {
		sb.WriteString("none, this is the first step")
	} else {
		sb.WriteString(previousGoal)
	}
	sb.WriteString("\n\n")

	if previousState != nil {
		writeState(&sb, "Previous", "previous", previousState, false, opts)
		sb.WriteString("\n")
	}
	writeState(&sb, "Current", "current", currentState, true, opts)
	writeResults(&sb, results, opts.MaxErrorLength)

	sb.WriteString("\n\n")
	sb.WriteString(evaluationFormat)
	return schemas.Message{Role: schemas.RoleSystem, Content: sb.String()}
}

// StricterEvaluationNote is appended when the first evaluation reply was unusable.
func StricterEvaluationNote() schemas.Message {
	return schemas.Message{
		Role:    schemas.RoleUser,
		Content: `Your previous reply could not be parsed. Reply with only the JSON object shown above: a single "current_state" key holding exactly "evaluation_previous_goal", "memory" and "next_goal". No prose, no markdown fences, no other keys.`,
	}
}

// BuildFilterPrompt asks for the subset of the current snapshot relevant to
// nextGoal, in the same line format the snapshot renders to.
func BuildFilterPrompt(nextGoal string, currentState *schemas.BrowserState, opts ObservationOptions) schemas.Message {
	var sb strings.Builder
	sb.WriteString(filterIntro)
	sb.WriteString("\n\nNext goal: ")
	if nextGoal == "" {
		sb.WriteString("not set yet; keep the elements needed to make progress on the task")
	} else {
		sb.WriteString(nextGoal)
	}
	sb.WriteString("\n\n")
	writeState(&sb, "Current", "current", currentState, false, opts)
	sb.WriteString("\n")
	sb.WriteString(filterFormat)
	return schemas.Message{Role: schemas.RoleSystem, Content: sb.String()}
}

// BuildActionPrompt composes the decision request from the evaluation, the
// filtered element text and the carried memory.
func BuildActionPrompt(evalResult schemas.CurrentState, filterResult string, nextGoal string, memory string) schemas.Message {
	var sb strings.Builder
	sb.WriteString("Evaluation of the previous goal: ")
	sb.WriteString(orDefault(evalResult.EvaluationPreviousGoal, "Unknown"))
	sb.WriteString("\nMemory: ")
	sb.WriteString(orDefault(memory, "nothing yet"))
	sb.WriteString("\nNext goal: ")
	sb.WriteString(orDefault(nextGoal, "not set yet; decide it from the task"))
	sb.WriteString("\n\nRelevant interactive elements for the next goal:\n")
	sb.WriteString(orDefault(filterResult, "empty page"))
	sb.WriteString("\n\nChoose the actions that achieve the next goal, using only the element indexes listed above. Respond with the JSON format described in the system message, including current_state.")
	return schemas.Message{Role: schemas.RoleSystem, Content: sb.String()}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
