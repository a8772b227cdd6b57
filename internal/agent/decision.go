// internal/agent/decision.go
package agent

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// wireState mirrors current_state with pointer fields so absent keys can be
// told apart from empty strings.
type wireState struct {
	EvaluationPreviousGoal *string `json:"evaluation_previous_goal"`
	Memory                 *string `json:"memory"`
	NextGoal               *string `json:"next_goal"`
}

type wireDecision struct {
	CurrentState *wireState                      `json:"current_state"`
	Action       []map[string]jsoniter.RawMessage `json:"action"`
}

type wireEvaluation struct {
	CurrentState *wireState `json:"current_state"`
}

// ParseDecision validates a raw model reply against the decision contract and
// the catalog. Any violation yields a *DecisionParseError carrying the raw text.
func ParseDecision(raw string, catalog *Catalog) (schemas.AgentDecision, error) {
	decision, err := parseDecision(raw, catalog)
	if err != nil {
		return schemas.AgentDecision{}, &DecisionParseError{Code: ErrCodeDecisionInvalid, Raw: raw, Err: err}
	}
	return decision, nil
}

func parseDecision(raw string, catalog *Catalog) (schemas.AgentDecision, error) {
	body, err := llmutil.ExtractJSONObject(raw)
	if err != nil {
		return schemas.AgentDecision{}, err
	}

	if err := llmutil.RejectDuplicateKeys(body); err != nil {
		return schemas.AgentDecision{}, err
	}

	// A bare key scan first, so a missing key is reported as such rather than as
	// a generic decode failure.
	var keys map[string]jsoniter.RawMessage
	if err := llmutil.StrictJSON.UnmarshalFromString(body, &keys); err != nil {
		return schemas.AgentDecision{}, fmt.Errorf("reply is not a JSON object: %w", err)
	}
	for _, required := range []string{"current_state", "action"} {
		if _, ok := keys[required]; !ok {
			return schemas.AgentDecision{}, fmt.Errorf("missing required key %q", required)
		}
	}

	var wire wireDecision
	if err := llmutil.StrictJSON.UnmarshalFromString(body, &wire); err != nil {
		return schemas.AgentDecision{}, fmt.Errorf("reply does not match the response format: %w", err)
	}

	state, err := wire.CurrentState.toState()
	if err != nil {
		return schemas.AgentDecision{}, err
	}

	if len(wire.Action) == 0 {
		return schemas.AgentDecision{}, errors.New(`"action" must list at least one action`)
	}

	actions := make([]schemas.ActionCall, 0, len(wire.Action))
	for i, entry := range wire.Action {
		call, err := parseActionEntry(i, entry)
		if err != nil {
			return schemas.AgentDecision{}, err
		}
		if err := catalog.Validate(call); err != nil {
			return schemas.AgentDecision{}, fmt.Errorf("action %d: %w", i+1, err)
		}
		actions = append(actions, call)
	}

	return schemas.AgentDecision{CurrentState: state, Actions: actions}, nil
}

func parseActionEntry(i int, entry map[string]jsoniter.RawMessage) (schemas.ActionCall, error) {
	if len(entry) != 1 {
		return schemas.ActionCall{}, fmt.Errorf("action %d must name exactly one action, got %d keys", i+1, len(entry))
	}
	var (
		name   string
		params jsoniter.RawMessage
	)
	for k, v := range entry {
		name, params = k, v
	}

	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return schemas.ActionCall{}, fmt.Errorf("action %d (%s): parameters must be a JSON object", i+1, name)
	}
	var decoded map[string]any
	if err := llmutil.StrictJSON.Unmarshal(trimmed, &decoded); err != nil {
		return schemas.ActionCall{}, fmt.Errorf("action %d (%s): invalid parameters: %w", i+1, name, err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return schemas.ActionCall{Name: name, Params: decoded}, nil
}

// toState requires all three keys; values may be empty strings.
func (w *wireState) toState() (schemas.CurrentState, error) {
	if w == nil {
		return schemas.CurrentState{}, errors.New(`"current_state" must be an object`)
	}
	for _, f := range []struct {
		key string
		v   *string
	}{
		{"evaluation_previous_goal", w.EvaluationPreviousGoal},
		{"memory", w.Memory},
		{"next_goal", w.NextGoal},
	} {
		if f.v == nil {
			return schemas.CurrentState{}, fmt.Errorf("current_state is missing required key %q", f.key)
		}
	}
	return schemas.CurrentState{
		EvaluationPreviousGoal: *w.EvaluationPreviousGoal,
		Memory:                 *w.Memory,
		NextGoal:               *w.NextGoal,
	}, nil
}

// ParseEvaluation validates the reply of the evaluation stage, which carries
// only current_state.
func ParseEvaluation(raw string) (schemas.CurrentState, error) {
	wire, err := llmutil.ParseJSONResponse[wireEvaluation](raw)
	if err != nil {
		return schemas.CurrentState{}, &DecisionParseError{Code: ErrCodeDecisionInvalid, Raw: raw, Err: err}
	}
	if wire.CurrentState == nil {
		return schemas.CurrentState{}, &DecisionParseError{Code: ErrCodeDecisionInvalid, Raw: raw, Err: errors.New(`missing required key "current_state"`)}
	}
	state, err := wire.CurrentState.toState()
	if err != nil {
		return schemas.CurrentState{}, &DecisionParseError{Code: ErrCodeDecisionInvalid, Raw: raw, Err: err}
	}
	return state, nil
}
