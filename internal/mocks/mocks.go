// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

func (m *MockConfig) LLM() config.LLMRouterConfig {
	args := m.Called()
	return args.Get(0).(config.LLMRouterConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

// --- Setters ---

func (m *MockConfig) SetAgentMaxSteps(n int)    { m.Called(n) }
func (m *MockConfig) SetAgentStrategy(s string) { m.Called(s) }
func (m *MockConfig) SetAgentConcurrency(n int) { m.Called(n) }
func (m *MockConfig) SetBrowserHeadless(b bool) { m.Called(b) }

// -- Browser Driver Mock --

// MockDriver mocks the schemas.Driver interface.
type MockDriver struct {
	mock.Mock
}

var _ schemas.Driver = (*MockDriver)(nil)

// Capture mocks the observation call.
func (m *MockDriver) Capture(ctx context.Context, opts schemas.CaptureOptions) (*schemas.BrowserState, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.BrowserState), args.Error(1)
}

// Execute mocks a single action.
func (m *MockDriver) Execute(ctx context.Context, call schemas.ActionCall) (schemas.ActionResult, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(schemas.ActionResult), args.Error(1)
}

func (m *MockDriver) OpenTab(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) SwitchTab(ctx context.Context, handle string) error {
	return m.Called(ctx, handle).Error(0)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface. Requests are recorded
// so tests can inspect the exact prompts sent.
type MockLLMClient struct {
	mock.Mock
	mu       sync.Mutex
	requests []schemas.GenerationRequest
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

// Generate mocks the LLM generation call.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// Requests returns a copy of every request received so far.
func (m *MockLLMClient) Requests() []schemas.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// -- History Store Mock --

// MockHistoryStore mocks the schemas.HistoryStore interface.
type MockHistoryStore struct {
	mock.Mock
}

var _ schemas.HistoryStore = (*MockHistoryStore)(nil)

func (m *MockHistoryStore) SaveStep(ctx context.Context, rec schemas.StepRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockHistoryStore) ListSteps(ctx context.Context, runID string) ([]schemas.StepRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.StepRecord), args.Error(1)
}
