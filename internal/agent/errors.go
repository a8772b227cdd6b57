// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// ErrorCode is a string type used for structured error reporting across the
// step pipeline. Using a custom type ensures that only predefined constants can
// be used where an ErrorCode is expected.
type ErrorCode string

const (
	// -- Observation --
	ErrCodeObservationFailed ErrorCode = "OBSERVATION_FAILED"

	// -- Model --
	ErrCodeModelUnavailable    ErrorCode = "MODEL_UNAVAILABLE"
	ErrCodeModelTimeout        ErrorCode = "MODEL_TIMEOUT"
	ErrCodeModelRequestInvalid ErrorCode = "MODEL_REQUEST_INVALID"
	ErrCodeDecisionInvalid     ErrorCode = "DECISION_INVALID"

	// -- Execution --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeElementNotFound   ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"

	// -- Fatal --
	ErrCodeSessionLost ErrorCode = "SESSION_LOST"
)

// ObservationError reports that the browser state could not be captured.
type ObservationError struct {
	Code ErrorCode
	Err  error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("observation failed: %v", e.Err)
}

func (e *ObservationError) Unwrap() error { return e.Err }

// ModelCommunicationError reports a failed or timed out model call.
type ModelCommunicationError struct {
	Code ErrorCode
	Tier schemas.ModelTier
	Err  error
}

func (e *ModelCommunicationError) Error() string {
	return fmt.Sprintf("model call (%s tier) failed: %v", e.Tier, e.Err)
}

func (e *ModelCommunicationError) Unwrap() error { return e.Err }

// DecisionParseError reports model output that does not satisfy the decision
// contract. Raw holds the offending output for the corrective retry.
type DecisionParseError struct {
	Code ErrorCode
	Raw  string
	Err  error
}

func (e *DecisionParseError) Error() string {
	return fmt.Sprintf("could not parse model output: %v", e.Err)
}

func (e *DecisionParseError) Unwrap() error { return e.Err }

// ActionExecutionError reports a single action that failed. It is surfaced to
// the model as an action result and never ends the run.
type ActionExecutionError struct {
	Code   ErrorCode
	Action string
	Err    error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// UnrecoverableDriverError ends the run: the browser session cannot be used again.
type UnrecoverableDriverError struct {
	Code ErrorCode
	Err  error
}

func (e *UnrecoverableDriverError) Error() string {
	return fmt.Sprintf("browser session is unusable: %v", e.Err)
}

func (e *UnrecoverableDriverError) Unwrap() error { return e.Err }

// classifyDriverError promotes a lost session to an UnrecoverableDriverError
// and returns nil for anything the run can absorb.
func classifyDriverError(err error) *UnrecoverableDriverError {
	var unrecoverable *UnrecoverableDriverError
	if errors.As(err, &unrecoverable) {
		return unrecoverable
	}
	if errors.Is(err, schemas.ErrSessionLost) {
		return &UnrecoverableDriverError{Code: ErrCodeSessionLost, Err: err}
	}
	return nil
}

// ErrorCodeOf extracts the code of the first typed pipeline error in err's chain.
func ErrorCodeOf(err error) ErrorCode {
	var (
		obs    *ObservationError
		model  *ModelCommunicationError
		parse  *DecisionParseError
		action *ActionExecutionError
		fatal  *UnrecoverableDriverError
		unk    *schemas.UnknownActionError
	)
	switch {
	case errors.As(err, &fatal):
		return fatal.Code
	case errors.As(err, &obs):
		return obs.Code
	case errors.As(err, &model):
		return model.Code
	case errors.As(err, &parse):
		return parse.Code
	case errors.As(err, &action):
		return action.Code
	case errors.As(err, &unk):
		return ErrCodeUnknownAction
	default:
		return ""
	}
}
