// internal/llmclient/convert.go
package llmclient

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// inlineImage is a decoded data URL.
type inlineImage struct {
	MIMEType string
	Data     []byte
}

// decodeDataURL parses `data:<mime>;base64,<payload>`.
func decodeDataURL(u string) (inlineImage, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return inlineImage{}, fmt.Errorf("image is not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return inlineImage{}, fmt.Errorf("malformed data URL")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return inlineImage{}, fmt.Errorf("data URL must be base64 encoded")
	}
	if mime == "" {
		mime = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return inlineImage{}, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return inlineImage{MIMEType: mime, Data: data}, nil
}

// splitSystem separates system messages from the conversation. Providers that
// take a single system instruction get all system text joined in order.
func splitSystem(msgs []schemas.Message) (string, []schemas.Message) {
	var (
		system []string
		rest   []schemas.Message
	)
	for _, m := range msgs {
		if m.Role == schemas.RoleSystem {
			system = append(system, m.Text())
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// newLimiter returns the per-model request limiter. A non-positive rate disables limiting.
func newLimiter(cfg config.LLMModelConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}
