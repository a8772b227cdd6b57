// internal/browser/context_utils.go
package browser

import (
	"context"
	"errors"
	"time"
)

// CombineContext derives a context from primary that is also cancelled when
// secondary is. Values come from primary only. chromedp keeps its target in the
// context, so primary is the session context and secondary carries the caller's
// deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	deadline, hasDeadline := secondary.Deadline()
	if hasDeadline {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		inner := cancel
		cancel = func() { cancelDeadline(); inner() }
	}

	stop := context.AfterFunc(secondary, func() {
		// An expired deadline is reported by combined itself as DeadlineExceeded.
		if hasDeadline && errors.Is(secondary.Err(), context.DeadlineExceeded) {
			return
		}
		cancel()
	})
	release := cancel
	return combined, func() { stop(); release() }
}

// valueOnlyContext keeps the values of its parent but none of its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context carrying ctx's values that is never cancelled. Used
// for cleanup that must run after the caller gave up.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
