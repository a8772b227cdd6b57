package schemas

import (
	"errors"
	"fmt"
)

// ErrSessionLost is returned (wrapped) by drivers when the browser session is gone
// and no further calls can succeed.
var ErrSessionLost = errors.New("browser session lost")

// ErrInvalidRequest is returned (wrapped) by model clients when a generation
// request cannot be turned into a provider call. Resending it cannot succeed.
var ErrInvalidRequest = errors.New("invalid generation request")

// UnknownActionError is returned by executors for action names they do not handle.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}
