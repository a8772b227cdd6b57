package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func setupOllamaClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOllama
	cfg.APIKey = ""
	cfg.Model = "qwen2.5vl"
	cfg.Endpoint = server.URL
	cfg.MaxTokens = 512

	client, err := NewOllamaClient(cfg, setupTestLogger(t))
	require.NoError(t, err)
	return client
}

func TestOllamaClient_Generate(t *testing.T) {
	var got api.ChatRequest
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model": "qwen2.5vl", "message": {"role": "assistant", "content": "{\"ok\": true}"}, "done": true, "done_reason": "stop", "prompt_eval_count": 12, "eval_count": 4}`)
	})

	req := createTestRequest()
	req.Options.ForceJSONFormat = true
	req.Messages = append(req.Messages, schemas.Message{
		Role: schemas.RoleUser,
		Parts: []schemas.ContentPart{
			{Type: schemas.PartText, Text: "look"},
			{Type: schemas.PartImage, ImageURL: "data:image/png;base64,aGVsbG8="},
		},
	})

	resp, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp)

	assert.Equal(t, "qwen2.5vl", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.JSONEq(t, `"json"`, string(got.Format))
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "look", got.Messages[2].Content)
	require.Len(t, got.Messages[2].Images, 1)
	assert.Equal(t, api.ImageData("hello"), got.Messages[2].Images[0])
	assert.InDelta(t, 0.2, got.Options["temperature"], 1e-9)
	assert.EqualValues(t, 512, got.Options["num_predict"])
}

func TestOllamaClient_Generate_NoFormatWithoutJSON(t *testing.T) {
	var got api.ChatRequest
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"message": {"role": "assistant", "content": "0[:]<a>x</a>"}, "done": true}`)
	})

	resp, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "0[:]<a>x</a>", resp)
	assert.Empty(t, got.Format)
}

func TestOllamaClient_Generate_Errors(t *testing.T) {
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error": "model \"qwen2.5vl\" not found"}`)
	})
	_, err := client.Generate(context.Background(), createTestRequest())
	assert.ErrorContains(t, err, "ollama chat")

	empty := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message": {"role": "assistant", "content": ""}, "done": true, "done_reason": "length"}`)
	})
	_, err = empty.Generate(context.Background(), createTestRequest())
	assert.ErrorContains(t, err, "empty reply (Reason: length)")
}

func TestOllamaClient_Generate_BadImageIsInvalidRequest(t *testing.T) {
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	req := createTestRequest()
	req.Messages[1] = schemas.Message{Role: schemas.RoleUser, Parts: []schemas.ContentPart{{Type: schemas.PartImage, ImageURL: "data:image/png,raw"}}}

	_, err := client.Generate(context.Background(), req)
	assert.ErrorIs(t, err, schemas.ErrInvalidRequest)
	assert.ErrorContains(t, err, "must be base64 encoded")
}

func TestNewOllamaClient_Validation(t *testing.T) {
	_, err := NewOllamaClient(config.LLMModelConfig{Provider: config.ProviderOllama}, setupTestLogger(t))
	assert.ErrorContains(t, err, "model name is required")

	_, err = NewOllamaClient(config.LLMModelConfig{Provider: config.ProviderOllama, Model: "m", Endpoint: "://bad"}, setupTestLogger(t))
	assert.ErrorContains(t, err, "bad host")
}
