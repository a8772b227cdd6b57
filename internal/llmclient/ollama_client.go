// internal/llmclient/ollama_client.go
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// OllamaClient implements schemas.LLMClient on a local or remote Ollama server.
type OllamaClient struct {
	client  *api.Client
	config  config.LLMModelConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOllamaClient connects to cfg.Endpoint, or to OLLAMA_HOST when no endpoint
// is configured.
func NewOllamaClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model name is required")
	}

	var client *api.Client
	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", cfg.Endpoint, err)
		}
		client = api.NewClient(u, &http.Client{Timeout: cfg.APITimeout})
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client init: %w", err)
		}
		client = c
	}

	return &OllamaClient{
		client:  client,
		config:  cfg,
		limiter: newLimiter(cfg),
		logger:  logger.Named("llm_client.ollama").With(zap.String("model", cfg.Model)),
	}, nil
}

// Generate runs a non-streaming chat completion.
func (c *OllamaClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	chatReq, err := c.buildRequest(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", schemas.ErrInvalidRequest, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ollama rate limiter: %w", err)
	}

	startTime := time.Now()
	var (
		out  strings.Builder
		last api.ChatResponse
	)
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("ollama returned an empty reply (Reason: %s)", last.DoneReason)
	}

	c.logger.Debug("LLM generation complete (Ollama)",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("prompt_tokens", last.PromptEvalCount),
		zap.Int("completion_tokens", last.EvalCount))
	return out.String(), nil
}

func (c *OllamaClient) buildRequest(req schemas.GenerationRequest) (*api.ChatRequest, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.config.Model,
		Stream:   &stream,
		Messages: make([]api.Message, 0, len(req.Messages)),
		Options:  map[string]any{"temperature": req.Options.Temperature},
	}
	if req.Options.ForceJSONFormat {
		chatReq.Format = json.RawMessage(`"json"`)
	}
	if c.config.TopP > 0 {
		chatReq.Options["top_p"] = c.config.TopP
	}
	if c.config.TopK > 0 {
		chatReq.Options["top_k"] = c.config.TopK
	}
	if c.config.MaxTokens > 0 {
		chatReq.Options["num_predict"] = c.config.MaxTokens
	}

	for _, m := range req.Messages {
		msg := api.Message{Role: string(m.Role), Content: m.Text()}
		for _, u := range m.Images() {
			img, err := decodeDataURL(u)
			if err != nil {
				return nil, err
			}
			msg.Images = append(msg.Images, api.ImageData(img.Data))
		}
		chatReq.Messages = append(chatReq.Messages, msg)
	}
	return chatReq, nil
}

// Close is a no-op; the HTTP client is shared.
func (c *OllamaClient) Close() error {
	return nil
}
