// internal/browser/session.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/dom"
)

// tab is one page target of the session.
type tab struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
}

// Session drives the tabs of one isolated browser context. It implements
// schemas.Driver; calls are expected from a single goroutine, the mutex only
// guards against Close racing an in-flight call.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	root       context.Context
	rootCancel context.CancelFunc
	onClose    func()

	mu      sync.Mutex
	tabs    []*tab
	current int
	closed  bool
}

var _ schemas.Driver = (*Session)(nil)

func newSession(id string, root context.Context, rootCancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) *Session {
	s := &Session{
		id:         id,
		cfg:        cfg,
		logger:     logger,
		root:       root,
		rootCancel: rootCancel,
		onClose:    onClose,
	}
	if c := chromedp.FromContext(root); c != nil && c.Target != nil {
		s.tabs = []*tab{{id: c.Target.TargetID, ctx: root, cancel: rootCancel}}
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Close closes every tab and disposes of the browser context. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tabs := s.tabs
	s.tabs = nil
	s.mu.Unlock()

	for _, t := range tabs {
		if t.ctx != s.root {
			t.cancel()
		}
	}
	s.rootCancel()
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Debug("Session closed.")
}

// Capture observes the current tab: element snapshot, open tabs and optionally
// a screenshot.
func (s *Session) Capture(ctx context.Context, opts schemas.CaptureOptions) (*schemas.BrowserState, error) {
	infos, err := s.syncTabs(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := s.currentTab()
	if err != nil {
		return nil, err
	}
	runCtx, cancel := CombineContext(cur.ctx, ctx)
	defer cancel()

	var page string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(indexerJS, &page)); err != nil {
		return nil, s.wrap(ctx, cur, fmt.Errorf("failed to index page elements: %w", err))
	}

	snapshot, err := dom.ExtractString(page)
	if err != nil {
		return nil, err
	}

	state := &schemas.BrowserState{Elements: snapshot}
	for _, t := range s.snapshotTabs() {
		info := infos[t.id]
		entry := schemas.Tab{Handle: string(t.id)}
		if info != nil {
			entry.URL = info.URL
			entry.Title = info.Title
		}
		state.Tabs = append(state.Tabs, entry)
		if t == cur {
			state.URL = entry.URL
		}
	}

	if opts.Screenshot {
		var buf []byte
		if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
			// A page without a screenshot is still a usable observation.
			if lost := s.wrap(ctx, cur, err); errors.Is(lost, schemas.ErrSessionLost) || ctx.Err() != nil {
				return nil, lost
			}
			s.logger.Warn("Failed to capture screenshot.", zap.Error(err))
		} else {
			state.Screenshot = base64.StdEncoding.EncodeToString(buf)
		}
	}
	return state, nil
}

// OpenTab opens a new tab in the session's browser context and makes it current.
func (s *Session) OpenTab(ctx context.Context, url string) error {
	if err := s.alive(); err != nil {
		return err
	}

	tabCtx, tabCancel := chromedp.NewContext(s.root)
	created := make(chan error, 1)
	go func() { created <- chromedp.Run(tabCtx) }()
	select {
	case err := <-created:
		if err != nil {
			tabCancel()
			return s.wrap(ctx, nil, fmt.Errorf("failed to open tab: %w", err))
		}
	case <-ctx.Done():
		tabCancel()
		return ctx.Err()
	}

	t := &tab{id: chromedp.FromContext(tabCtx).Target.TargetID, ctx: tabCtx, cancel: tabCancel}
	s.mu.Lock()
	s.tabs = append(s.tabs, t)
	s.current = len(s.tabs) - 1
	s.mu.Unlock()

	if url == "" {
		return nil
	}
	return s.navigate(ctx, t, url)
}

// SwitchTab makes the tab with the given handle current and brings it to front.
func (s *Session) SwitchTab(ctx context.Context, handle string) error {
	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	idx := -1
	for i, t := range s.tabs {
		if string(t.id) == handle {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("no tab with handle %q", handle)
	}
	s.current = idx
	t := s.tabs[idx]
	s.mu.Unlock()

	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, target.ActivateTarget(t.id)); err != nil {
		return s.wrap(ctx, t, fmt.Errorf("failed to activate tab: %w", err))
	}
	return nil
}

// syncTabs reconciles the tab list with the page targets of the browser context.
// Pages the site opened itself (popups, target=_blank) are attached; tabs that
// closed are dropped.
func (s *Session) syncTabs(ctx context.Context) (map[target.ID]*target.Info, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	runCtx, cancel := CombineContext(s.root, ctx)
	defer cancel()
	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, s.wrap(ctx, nil, fmt.Errorf("failed to list targets: %w", err))
	}

	var browserContextID string
	if c := chromedp.FromContext(s.root); c != nil {
		browserContextID = string(c.BrowserContextID)
	}

	pages := make(map[target.ID]*target.Info, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if browserContextID != "" && string(info.BrowserContextID) != browserContextID {
			continue
		}
		pages[info.TargetID] = info
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var curID target.ID
	if s.current < len(s.tabs) {
		curID = s.tabs[s.current].id
	}

	kept := s.tabs[:0]
	known := make(map[target.ID]bool, len(s.tabs))
	for _, t := range s.tabs {
		if _, ok := pages[t.id]; ok || t.ctx == s.root {
			kept = append(kept, t)
			known[t.id] = true
			continue
		}
		t.cancel()
		s.logger.Debug("Tab closed.", zap.String("tab", string(t.id)))
	}
	s.tabs = kept

	for _, info := range infos {
		if pages[info.TargetID] == nil || known[info.TargetID] {
			continue
		}
		tabCtx, tabCancel := chromedp.NewContext(s.root, chromedp.WithTargetID(info.TargetID))
		s.tabs = append(s.tabs, &tab{id: info.TargetID, ctx: tabCtx, cancel: tabCancel})
		s.logger.Debug("Attached to new tab.", zap.String("tab", string(info.TargetID)), zap.String("url", info.URL))
	}

	s.current = 0
	for i, t := range s.tabs {
		if t.id == curID {
			s.current = i
		}
	}
	if len(s.tabs) == 0 {
		return nil, fmt.Errorf("%w: no open tabs", schemas.ErrSessionLost)
	}
	return pages, nil
}

func (s *Session) currentTab() (*tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: session closed", schemas.ErrSessionLost)
	}
	if s.current >= len(s.tabs) {
		return nil, fmt.Errorf("%w: no open tabs", schemas.ErrSessionLost)
	}
	return s.tabs[s.current], nil
}

func (s *Session) snapshotTabs() []*tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*tab(nil), s.tabs...)
}

// tabAt returns the tab with the given position in the rendered tab list.
func (s *Session) tabAt(pos int) (*tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.tabs) {
		return nil, false
	}
	return s.tabs[pos], true
}

func (s *Session) alive() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.root.Err() != nil {
		return fmt.Errorf("%w: session closed", schemas.ErrSessionLost)
	}
	return nil
}

// wrap marks err as a lost session when the browser context or tab is gone.
// Errors caused by the caller's own context are returned unchanged.
func (s *Session) wrap(ctx context.Context, t *tab, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if s.root.Err() != nil || errors.Is(err, chromedp.ErrInvalidContext) {
		return fmt.Errorf("%w: %v", schemas.ErrSessionLost, err)
	}
	if t != nil && t.ctx.Err() != nil && len(s.snapshotTabs()) <= 1 {
		return fmt.Errorf("%w: %v", schemas.ErrSessionLost, err)
	}
	return err
}

// navigate loads url in t, bounded by the configured navigation timeout.
func (s *Session) navigate(ctx context.Context, t *tab, url string) error {
	navCtx := ctx
	if s.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}
	runCtx, cancel := CombineContext(t.ctx, navCtx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return s.wrap(ctx, t, fmt.Errorf("failed to navigate to %s: %w", url, err))
	}
	return nil
}

// settle gives the page a moment after an action before it is inspected again.
func (s *Session) settle(ctx context.Context) error {
	if s.cfg.PostActionWait <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.PostActionWait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
