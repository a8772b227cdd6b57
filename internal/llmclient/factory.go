// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// NewClient builds an LLMRouter from the llm configuration section. When both
// tiers name the same model a single client serves both.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (*LLMRouter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fast, err := NewModelClient(ctx, cfg.Models[cfg.DefaultFastModel], logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client %q: %w", cfg.DefaultFastModel, err)
	}

	powerful := fast
	if cfg.DefaultPowerfulModel != cfg.DefaultFastModel {
		powerful, err = NewModelClient(ctx, cfg.Models[cfg.DefaultPowerfulModel], logger)
		if err != nil {
			_ = fast.Close()
			return nil, fmt.Errorf("failed to create powerful tier client %q: %w", cfg.DefaultPowerfulModel, err)
		}
	}

	return NewLLMRouter(logger, fast, powerful)
}

// NewModelClient creates the provider client for a single model entry.
func NewModelClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGoogleClient(ctx, cfg, logger)
	case config.ProviderOllama:
		return NewOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]", cfg.Provider, config.ProviderGemini, config.ProviderOllama)
	}
}
