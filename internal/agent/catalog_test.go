package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(ActionSpec{Name: "a"}, ActionSpec{Name: "a"})
	assert.ErrorContains(t, err, `duplicate action "a"`)

	_, err = NewCatalog(ActionSpec{Name: "b", Params: []ParamSpec{{Name: "x"}, {Name: "x"}}})
	assert.ErrorContains(t, err, `declares parameter "x" twice`)

	_, err = NewCatalog(ActionSpec{})
	assert.Error(t, err)
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	names := c.Names()
	assert.Equal(t, ActionDone, names[0])
	assert.Contains(t, names, ActionClickElement)
	assert.Contains(t, names, ActionExtractPage)

	assert.True(t, c.IsTerminal(ActionDone))
	assert.False(t, c.IsTerminal(ActionClickElement))
	assert.False(t, c.IsTerminal("nope"))

	spec, ok := c.Lookup(ActionInputText)
	require.True(t, ok)
	assert.Len(t, spec.Params, 2)
}

func TestCatalog_Describe(t *testing.T) {
	c, err := NewCatalog(
		ActionSpec{Name: "click", Description: "Click an element", Params: []ParamSpec{{Name: "index", Type: ParamInteger, Required: true}}},
		ActionSpec{Name: "scroll", Description: "Scroll", Params: []ParamSpec{{Name: "amount", Type: ParamInteger}}},
		ActionSpec{Name: "back", Description: "Go back"},
	)
	require.NoError(t, err)

	want := strings.Join([]string{
		`click: Click an element: {"index": {"type": "integer"}}`,
		`scroll: Scroll: {"amount": {"type": "integer", "optional": true}}`,
		`back: Go back: {}`,
	}, "\n")
	assert.Equal(t, want, c.Describe())
}

func TestCatalog_Validate(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name    string
		call    schemas.ActionCall
		wantErr string
	}{
		{"valid click", schemas.ActionCall{Name: ActionClickElement, Params: map[string]any{"index": json.Number("3")}}, ""},
		{"float index that is whole", schemas.ActionCall{Name: ActionClickElement, Params: map[string]any{"index": 3.0}}, ""},
		{"optional omitted", schemas.ActionCall{Name: ActionScrollDown, Params: map[string]any{}}, ""},
		{"unknown action", schemas.ActionCall{Name: "fly"}, `unknown action "fly"`},
		{"missing required", schemas.ActionCall{Name: ActionInputText, Params: map[string]any{"index": json.Number("1")}}, `missing required parameter "text"`},
		{"unknown parameter", schemas.ActionCall{Name: ActionGoBack, Params: map[string]any{"zeta": 1, "alpha": 2}}, `unknown parameter "alpha"`},
		{"wrong type", schemas.ActionCall{Name: ActionClickElement, Params: map[string]any{"index": "3"}}, `parameter "index" must be integer, got string`},
		{"fractional index", schemas.ActionCall{Name: ActionClickElement, Params: map[string]any{"index": json.Number("1.5")}}, `must be integer, got number`},
		{"null value", schemas.ActionCall{Name: ActionGoToURL, Params: map[string]any{"url": nil}}, `got null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.call)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	var unknown *schemas.UnknownActionError
	assert.ErrorAs(t, c.Validate(schemas.ActionCall{Name: "fly"}), &unknown)
}
