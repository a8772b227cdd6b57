// cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// writeTestConfig writes a config file that keeps logs inside the test's temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf("logger:\n  level: fatal\n  log_file: %q\n%s", filepath.Join(dir, "webpilot.log"), extra)
	path := filepath.Join(dir, "webpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// executeRoot runs the command tree with injected components and returns stdout and stderr.
func executeRoot(t *testing.T, factory componentFactory, provider storeProvider, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCommand(factory, provider)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// capturingFactory records the configuration a run was started with and
// stops before any component is built.
func capturingFactory(captured *config.Interface) componentFactory {
	return func(_ context.Context, cfg config.Interface, _ *zap.Logger) (*runComponents, error) {
		*captured = cfg
		return nil, errStopped
	}
}

var errStopped = fmt.Errorf("stopped by test")

// fakeProvider hands out a fixed history store.
type fakeProvider struct {
	store   schemas.HistoryStore
	err     error
	cleaned bool
}

func (p *fakeProvider) Create(context.Context, config.Interface, *zap.Logger) (schemas.HistoryStore, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() { p.cleaned = true }, nil
}

// scriptedLLM replies with the same text to every request.
type scriptedLLM struct {
	reply string
}

func (l *scriptedLLM) Generate(context.Context, schemas.GenerationRequest) (string, error) {
	return l.reply, nil
}

func (l *scriptedLLM) Close() error { return nil }

// staticDriver always observes the same page.
type staticDriver struct {
	url string
}

func (d *staticDriver) Capture(context.Context, schemas.CaptureOptions) (*schemas.BrowserState, error) {
	return &schemas.BrowserState{
		URL:  d.url,
		Tabs: []schemas.Tab{{Handle: "tab-0", URL: d.url, Title: "Example"}},
		Elements: schemas.ElementSnapshot{Nodes: []schemas.ElementNode{
			schemas.NewContext("Example Domain"),
			schemas.NewInteractive(0, "a", "More information", map[string]string{"href": "/more"}),
		}},
	}, nil
}

func (d *staticDriver) Execute(_ context.Context, call schemas.ActionCall) (schemas.ActionResult, error) {
	return schemas.ActionResult{}, &schemas.UnknownActionError{Name: call.Name}
}

func (d *staticDriver) OpenTab(context.Context, string) error   { return nil }
func (d *staticDriver) SwitchTab(context.Context, string) error { return nil }
