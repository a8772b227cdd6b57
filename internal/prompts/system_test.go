package prompts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

const testCatalog = `go_to_url: Navigate to URL in the current tab: {"url": {"type": "string"}}
done: Complete the task: {"text": {"type": "string"}}`

func TestBuildSystemPrompt(t *testing.T) {
	now := time.Date(2024, 11, 5, 9, 7, 0, 0, time.UTC)
	msg := BuildSystemPrompt(testCatalog, now, 7)

	assert.Equal(t, schemas.RoleSystem, msg.Role)
	assert.False(t, msg.IsMultiPart())

	content := msg.Content
	assert.Contains(t, content, "Current date and time: 2024-11-05 09:07")
	assert.Contains(t, content, "use maximum 7 actions per sequence")
	assert.Contains(t, content, "Functions:\n"+testCatalog)
	for _, key := range []string{`"current_state"`, `"evaluation_previous_goal"`, `"memory"`, `"next_goal"`, `"action"`} {
		assert.Contains(t, content, key)
	}
	assert.Contains(t, content, "10. TROUBLESHOOTING")
}

func TestBuildSystemPrompt_DeterministicModuloTime(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2031, 12, 24, 23, 59, 0, 0, time.UTC)

	a := BuildSystemPrompt(testCatalog, t1, 10).Content
	b := BuildSystemPrompt(testCatalog, t2, 10).Content
	require.NotEqual(t, a, b)

	stripA := strings.Replace(a, t1.Format(TimeLayout), "<time>", 1)
	stripB := strings.Replace(b, t2.Format(TimeLayout), "<time>", 1)
	assert.Equal(t, stripA, stripB)

	assert.Equal(t, a, BuildSystemPrompt(testCatalog, t1, 10).Content, "same inputs must compose identically")
}

func TestBuildTaskAndMemoryPrompts(t *testing.T) {
	task := BuildTaskPrompt("find the cheapest laptop")
	assert.Equal(t, schemas.RoleUser, task.Role)
	assert.Contains(t, task.Content, "Your ultimate task is: find the cheapest laptop.")

	mem := BuildMemoryPrompt("searched for laptops, 3 pages seen")
	assert.Equal(t, schemas.RoleUser, mem.Role)
	assert.True(t, strings.HasSuffix(mem.Content, "searched for laptops, 3 pages seen"))
}

func TestBuildCorrectionPrompt(t *testing.T) {
	msg := BuildCorrectionPrompt(errors.New(`missing required key "action"`))
	assert.Equal(t, schemas.RoleUser, msg.Role)
	assert.Contains(t, msg.Content, `missing required key "action"`)
	assert.Contains(t, msg.Content, `"current_state" and "action"`)

	assert.Contains(t, BuildCorrectionPrompt(nil).Content, "unknown error")
}
