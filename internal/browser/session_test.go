// internal/browser/session_test.go
package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
)

const formPage = `<!DOCTYPE html>
<html><head><title>Form</title></head>
<body>
	<h1>Search form</h1>
	<input id="q" name="q" placeholder="Search">
	<button id="go" onclick="const b = document.createElement('button'); b.textContent = 'Result ' + document.getElementById('q').value; document.body.appendChild(b);">Go</button>
	<a href="/second">Second page</a>
	<div style="display:none"><button>Hidden</button></div>
</body></html>`

const secondPage = `<!DOCTYPE html><html><head><title>Second</title></head><body><p>Welcome to the second page</p></body></html>`

// findChrome skips the test when no Chrome binary is installed.
func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("Chrome is not installed; skipping browser integration test.")
	return ""
}

func setupSession(t *testing.T) (*browser.Manager, *browser.Session, *httptest.Server) {
	t.Helper()
	execPath := findChrome(t)
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, formPage)
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, secondPage)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := config.BrowserConfig{
		Headless:          true,
		ExecPath:          execPath,
		Args:              []string{"--no-sandbox"},
		NavigationTimeout: 15 * time.Second,
		PostActionWait:    50 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mgr, err := browser.NewManager(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, mgr.Shutdown(shutdownCtx))
	})

	session, err := mgr.NewSession(ctx)
	require.NoError(t, err)
	return mgr, session, server
}

func act(name string, params map[string]any) schemas.ActionCall {
	return schemas.ActionCall{Name: name, Params: params}
}

func TestSession_Integration(t *testing.T) {
	_, session, server := setupSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err := session.Execute(ctx, act(agent.ActionGoToURL, map[string]any{"url": server.URL}))
	require.NoError(t, err)

	state, err := session.Capture(ctx, schemas.CaptureOptions{Screenshot: true})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/", state.URL)
	require.Len(t, state.Tabs, 1)
	assert.Equal(t, "Form", state.Tabs[0].Title)
	assert.NotEmpty(t, state.Screenshot)
	// input, button and link; the hidden button is not indexed.
	assert.Equal(t, 3, state.Elements.InteractiveCount())

	input, ok := state.Elements.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, "input", input.Tag)

	t.Run("InputAndClick", func(t *testing.T) {
		res, err := session.Execute(ctx, act(agent.ActionInputText, map[string]any{"index": 0, "text": "gophers"}))
		require.NoError(t, err)
		assert.Contains(t, res.ExtractedContent, "gophers")

		res, err = session.Execute(ctx, act(agent.ActionClickElement, map[string]any{"index": 1}))
		require.NoError(t, err)
		assert.True(t, res.PageChanged, "a new button appeared")

		state, err := session.Capture(ctx, schemas.CaptureOptions{})
		require.NoError(t, err)
		assert.Equal(t, 4, state.Elements.InteractiveCount())
	})

	t.Run("StaleIndex", func(t *testing.T) {
		_, err := session.Execute(ctx, act(agent.ActionClickElement, map[string]any{"index": 99}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no longer exists")
	})

	t.Run("UnknownAction", func(t *testing.T) {
		_, err := session.Execute(ctx, act("fly", nil))
		var unknown *schemas.UnknownActionError
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("TabsAndExtraction", func(t *testing.T) {
		res, err := session.Execute(ctx, act(agent.ActionOpenNewTab, map[string]any{"url": server.URL + "/second"}))
		require.NoError(t, err)
		assert.True(t, res.PageChanged)

		res, err = session.Execute(ctx, act(agent.ActionExtractPage, nil))
		require.NoError(t, err)
		assert.Contains(t, res.ExtractedContent, "Welcome to the second page")

		state, err := session.Capture(ctx, schemas.CaptureOptions{})
		require.NoError(t, err)
		require.Len(t, state.Tabs, 2)
		assert.Equal(t, server.URL+"/second", state.URL)

		_, err = session.Execute(ctx, act(agent.ActionSwitchTab, map[string]any{"page_id": 0}))
		require.NoError(t, err)
		state, err = session.Capture(ctx, schemas.CaptureOptions{})
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/", state.URL)
	})

	t.Run("ClosedSession", func(t *testing.T) {
		session.Close()
		_, err := session.Capture(ctx, schemas.CaptureOptions{})
		assert.ErrorIs(t, err, schemas.ErrSessionLost)
	})
}
