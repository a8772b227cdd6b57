// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// Manager owns one Chrome process. Each run gets its own Session, backed by an
// isolated browser context, so cookies and tabs never leak between runs.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewManager launches Chrome. The browser outlives ctx; call Shutdown to stop it.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser_manager")

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(cfg)...)

	sugar := logger.Sugar()
	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Infof),
		chromedp.WithErrorf(sugar.Errorf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(sugar.Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	m := &Manager{
		cfg:           cfg,
		logger:        logger,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		sessions:      make(map[string]*Session),
	}

	launched := make(chan error, 1)
	go func() { launched <- chromedp.Run(browserCtx) }()

	select {
	case err := <-launched:
		if err != nil {
			m.cancel()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
	case <-ctx.Done():
		m.cancel()
		return nil, fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}

	logger.Info("Browser launched.", zap.Bool("headless", cfg.Headless))
	return m, nil
}

// NewSession opens an isolated browser context with a single blank tab.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	id := uuid.NewString()
	rootCtx, rootCancel := chromedp.NewContext(m.browserCtx, chromedp.WithNewBrowserContext())

	created := make(chan error, 1)
	go func() { created <- chromedp.Run(rootCtx) }()
	select {
	case err := <-created:
		if err != nil {
			rootCancel()
			return nil, fmt.Errorf("failed to create browser context: %w", err)
		}
	case <-ctx.Done():
		rootCancel()
		return nil, ctx.Err()
	}

	s := newSession(id, rootCtx, rootCancel, m.cfg, m.logger.Named("session").With(zap.String("session_id", id)), func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	})

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug("Session created.", zap.String("session_id", id))
	return s, nil
}

// Shutdown closes every open session and stops the browser. It returns early
// with ctx's error if the browser does not exit in time.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser.", zap.Int("open_sessions", len(sessions)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
		for _, s := range sessions {
			s.Close()
		}
		m.cancel()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser shutdown did not complete: %w", ctx.Err())
	}
}

func (m *Manager) cancel() {
	m.browserCancel()
	m.allocCancel()
}
