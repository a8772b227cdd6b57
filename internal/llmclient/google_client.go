// internal/llmclient/google_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// GoogleClient implements schemas.LLMClient on the Gemini API.
type GoogleClient struct {
	client  *genai.Client
	config  config.LLMModelConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGoogleClient initializes the client. cfg.Endpoint overrides the API base URL.
func NewGoogleClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Google/Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}

	return &GoogleClient{
		client:  client,
		config:  cfg,
		limiter: newLimiter(cfg),
		logger:  logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
	}, nil
}

// Generate sends the conversation and returns the text of the first candidate.
func (c *GoogleClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents, genCfg, err := c.buildRequest(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", schemas.ErrInvalidRequest, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("gemini rate limiter: %w", err)
	}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini API blocked the request (Reason: %s)", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini API returned no candidates")
	}

	candidate := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(startTime))}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount))
	}
	c.logger.Debug("LLM generation complete (Gemini)", fields...)
	return sb.String(), nil
}

func (c *GoogleClient) buildRequest(req schemas.GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, convo := splitSystem(req.Messages)

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Options.Temperature)),
	}
	if system != "" && len(convo) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	if c.config.TopP > 0 {
		genCfg.TopP = genai.Ptr(c.config.TopP)
	}
	if c.config.TopK > 0 {
		genCfg.TopK = genai.Ptr(float32(c.config.TopK))
	}
	if c.config.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.config.MaxTokens)
	}

	if len(convo) == 0 && system != "" {
		// Gemini needs at least one user turn; a system-only request becomes one.
		return []*genai.Content{genai.NewContentFromText(system, genai.RoleUser)}, genCfg, nil
	}

	contents := make([]*genai.Content, 0, len(convo))
	for _, m := range convo {
		role := genai.Role(genai.RoleUser)
		if m.Role == schemas.RoleAssistant {
			role = genai.RoleModel
		}
		parts, err := googleParts(m)
		if err != nil {
			return nil, nil, err
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("generation request has no user content")
	}
	return contents, genCfg, nil
}

func googleParts(m schemas.Message) ([]*genai.Part, error) {
	if !m.IsMultiPart() {
		return []*genai.Part{genai.NewPartFromText(m.Content)}, nil
	}
	parts := make([]*genai.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case schemas.PartText:
			parts = append(parts, genai.NewPartFromText(p.Text))
		case schemas.PartImage:
			img, err := decodeDataURL(p.ImageURL)
			if err != nil {
				return nil, err
			}
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
	}
	return parts, nil
}

// Close releases client resources. The genai client holds none.
func (c *GoogleClient) Close() error {
	return nil
}
