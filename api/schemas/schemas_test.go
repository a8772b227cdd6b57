package schemas_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestActionCall_IntParam(t *testing.T) {
	testCases := []struct {
		name   string
		value  any
		want   int
		wantOK bool
	}{
		{"Int", 3, 3, true},
		{"Int64", int64(4), 4, true},
		{"WholeFloat", float64(5), 5, true},
		{"FractionalFloat", 5.5, 0, false},
		{"JSONNumber", json.Number("6"), 6, true},
		{"BadJSONNumber", json.Number("6.1"), 0, false},
		{"String", "7", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			call := schemas.ActionCall{Name: "click_element", Params: map[string]any{"index": tc.value}}
			got, ok := call.Index()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("Missing", func(t *testing.T) {
		_, ok := schemas.ActionCall{Name: "go_back"}.IntParam("amount")
		assert.False(t, ok)
	})
}

func TestActionCall_StringParam(t *testing.T) {
	call := schemas.ActionCall{Name: "input_text", Params: map[string]any{"text": "hello", "index": 1}}
	assert.Equal(t, "hello", call.StringParam("text"))
	assert.Equal(t, "", call.StringParam("index"))
	assert.Equal(t, "", call.StringParam("missing"))
}

func TestMessage(t *testing.T) {
	plain := schemas.Message{Role: schemas.RoleUser, Content: "hi"}
	assert.False(t, plain.IsMultiPart())
	assert.Equal(t, "hi", plain.Text())
	assert.Empty(t, plain.Images())

	multi := schemas.Message{
		Role:    schemas.RoleUser,
		Content: "ignored",
		Parts: []schemas.ContentPart{
			{Type: schemas.PartText, Text: "look at "},
			{Type: schemas.PartImage, ImageURL: "data:image/png;base64,AAAA"},
			{Type: schemas.PartText, Text: "this"},
		},
	}
	assert.True(t, multi.IsMultiPart())
	assert.Equal(t, "look at this", multi.Text())
	assert.Equal(t, []string{"data:image/png;base64,AAAA"}, multi.Images())
}

func TestElementSnapshot(t *testing.T) {
	snapshot := schemas.ElementSnapshot{Nodes: []schemas.ElementNode{
		schemas.NewContext("Heading"),
		schemas.NewInteractive(0, "a", "Home", map[string]string{"href": "/"}),
		schemas.NewInteractive(3, "button", "Go", nil),
	}}

	require.NoError(t, snapshot.Validate())
	assert.Equal(t, 2, snapshot.InteractiveCount())

	node, ok := snapshot.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "button", node.Tag)

	_, ok = snapshot.Lookup(1)
	assert.False(t, ok)
}

func TestElementSnapshot_ValidateRejects(t *testing.T) {
	idx := 1
	testCases := []struct {
		name  string
		nodes []schemas.ElementNode
		msg   string
	}{
		{"InteractiveWithoutIndex", []schemas.ElementNode{{Interactive: true, Text: "x"}}, "has no index"},
		{"ContextWithIndex", []schemas.ElementNode{{Index: &idx, Text: "x"}}, "is not interactive"},
		{"DuplicateIndex", []schemas.ElementNode{
			schemas.NewInteractive(1, "a", "one", nil),
			schemas.NewInteractive(1, "a", "two", nil),
		}, "duplicate element index 1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := schemas.ElementSnapshot{Nodes: tc.nodes}.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestNewInteractive_CopiesIndex(t *testing.T) {
	i := 2
	node := schemas.NewInteractive(i, "a", "", nil)
	i = 9
	assert.Equal(t, 2, *node.Index)
}

func TestBrowserState_HasScreenshot(t *testing.T) {
	var nilState *schemas.BrowserState
	assert.False(t, nilState.HasScreenshot())
	assert.False(t, (&schemas.BrowserState{}).HasScreenshot())
	assert.True(t, (&schemas.BrowserState{Screenshot: "iVBOR"}).HasScreenshot())
}

func TestErrors(t *testing.T) {
	wrapped := fmt.Errorf("capture failed: %w", schemas.ErrSessionLost)
	assert.ErrorIs(t, wrapped, schemas.ErrSessionLost)

	var unknown *schemas.UnknownActionError
	err := fmt.Errorf("execute: %w", &schemas.UnknownActionError{Name: "fly"})
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "fly", unknown.Name)
	assert.Equal(t, `unknown action "fly"`, unknown.Error())
}

func TestKeyModifierBits(t *testing.T) {
	combined := schemas.ModCtrl | schemas.ModShift
	assert.NotZero(t, combined&schemas.ModCtrl)
	assert.NotZero(t, combined&schemas.ModShift)
	assert.Zero(t, combined&schemas.ModAlt)
	assert.Equal(t, schemas.KeyModifier(10), combined)
}
