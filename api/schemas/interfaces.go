package schemas

import (
	"context"
)

// -- Browser Driver Interface --

// Driver controls a single browser session. Implementations must be safe to call
// sequentially from one goroutine; the agent never issues concurrent calls for
// the same run.
//
//go:generate mockery --name Driver --output ../../internal/mocks --outpkg mocks
type Driver interface {
	// Capture observes the current page and returns an immutable state descriptor.
	Capture(ctx context.Context, opts CaptureOptions) (*BrowserState, error)
	// Execute performs one action. Unknown action names yield an *UnknownActionError.
	Execute(ctx context.Context, call ActionCall) (ActionResult, error)
	// OpenTab opens a new tab and makes it current.
	OpenTab(ctx context.Context, url string) error
	// SwitchTab makes the tab with the given handle current.
	SwitchTab(ctx context.Context, handle string) error
}

// -- History Store Interface --

// HistoryStore persists step records so runs can be inspected after the fact.
type HistoryStore interface {
	// SaveStep appends one step record to its run.
	SaveStep(ctx context.Context, rec StepRecord) error
	// ListSteps returns a run's step records ordered by step number.
	ListSteps(ctx context.Context, runID string) ([]StepRecord, error)
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the provider for a JSON response.
}

// GenerationRequest encapsulates a complete request to the LLM: the ordered
// message list, the desired model tier, and generation options.
type GenerationRequest struct {
	Messages []Message         `json:"messages"`
	Tier     ModelTier         `json:"tier"`
	Options  GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
//
//go:generate mockery --name LLMClient --output ../../internal/mocks --outpkg mocks
type LLMClient interface {
	// Generate sends the messages and returns the raw text of the reply.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
