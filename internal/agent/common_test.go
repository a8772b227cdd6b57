package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// waitTimeout waits for a WaitGroup but gives up after timeout.
// Returns true if the wait group finished in time.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// testSettings returns fast settings with screenshots off so captures are
// requested with zero CaptureOptions.
func testSettings() Settings {
	s := DefaultSettings()
	s.MaxSteps = 10
	s.RetryBaseDelay = time.Millisecond
	s.ModelTimeout = 2 * time.Second
	s.ObservationTimeout = 2 * time.Second
	s.ActionTimeout = 2 * time.Second
	s.UseVision = false
	return s
}

// newTestPipeline wires mocks into a pipeline with a fixed clock and run id and
// returns the log observer.
func newTestPipeline(t *testing.T, driver schemas.Driver, llm schemas.LLMClient, settings Settings, opts ...Option) (*Pipeline, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithRunID("run-1")}, opts...)
	p, err := New(driver, llm, DefaultCatalog(), settings, zap.New(core), opts...)
	require.NoError(t, err)
	return p, logs
}

// pageState builds a browser state with one tab.
func pageState(url string, nodes ...schemas.ElementNode) *schemas.BrowserState {
	return &schemas.BrowserState{
		URL:      url,
		Tabs:     []schemas.Tab{{Handle: "tab-0", URL: url, Title: url}},
		Elements: schemas.ElementSnapshot{Nodes: nodes},
	}
}

// decisionJSON builds a model reply. Each action is a raw JSON object such as
// `{"click_element": {"index": 1}}`.
func decisionJSON(eval, memory, goal string, actions ...string) string {
	return fmt.Sprintf(`{"current_state": {"evaluation_previous_goal": %q, "memory": %q, "next_goal": %q}, "action": [%s]}`,
		eval, memory, goal, strings.Join(actions, ", "))
}

func doneJSON(text string) string {
	return decisionJSON("Success", "", "", fmt.Sprintf(`{"done": {"text": %q}}`, text))
}

func isTier(tier schemas.ModelTier) any {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.Tier == tier })
}

func isAction(name string) any {
	return mock.MatchedBy(func(call schemas.ActionCall) bool { return call.Name == name })
}

func anyCtx() any {
	return mock.MatchedBy(func(context.Context) bool { return true })
}

// lastText returns the text of the final message of a request.
func lastText(req schemas.GenerationRequest) string {
	return req.Messages[len(req.Messages)-1].Text()
}
