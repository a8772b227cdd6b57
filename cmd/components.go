// cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// runComponents are the long lived services shared by every run of one
// invocation. Each run still gets its own driver session.
type runComponents struct {
	Store schemas.HistoryStore
	LLM   schemas.LLMClient
	// NewDriver opens an isolated browser session. The release function is
	// never nil.
	NewDriver func(ctx context.Context) (schemas.Driver, func(), error)

	closers []func(context.Context)
}

// Shutdown releases components in reverse order of creation.
func (c *runComponents) Shutdown(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i](ctx)
	}
}

// componentFactory builds the run components. Tests substitute their own.
type componentFactory func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*runComponents, error)

// defaultComponents wires the configured history store, LLM router and browser.
func defaultComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*runComponents, error) {
	c := &runComponents{}

	history, closeStore, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	c.Store = history
	c.closers = append(c.closers, func(context.Context) { closeStore() })

	router, err := llmclient.NewClient(ctx, cfg.LLM(), logger)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	c.LLM = router
	c.closers = append(c.closers, func(context.Context) {
		if err := router.Close(); err != nil {
			logger.Warn("Failed to close LLM client cleanly.", zap.Error(err))
		}
	})

	mgr, err := browser.NewManager(ctx, cfg.Browser(), logger)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	c.closers = append(c.closers, func(ctx context.Context) {
		// Shutdown must run even when the invocation was interrupted.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser did not shut down cleanly.", zap.Error(err))
		}
	})

	c.NewDriver = func(ctx context.Context) (schemas.Driver, func(), error) {
		session, err := mgr.NewSession(ctx)
		if err != nil {
			return nil, func() {}, err
		}
		return session, session.Close, nil
	}
	return c, nil
}

// storeProvider opens the history store for read-only commands.
type storeProvider interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.HistoryStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider backed by the configured store.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.HistoryStore, func(), error) {
	if cfg.Store().Type != config.StorePostgres {
		return nil, nil, fmt.Errorf("run history is only kept across invocations by the postgres store (store.type is %q)", cfg.Store().Type)
	}
	return store.Open(ctx, cfg.Store(), logger)
}
