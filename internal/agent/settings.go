// internal/agent/settings.go
package agent

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/dom"
	"github.com/xkilldash9x/webpilot/internal/prompts"
)

// Settings is the per-run configuration of a pipeline. It is copied into each
// pipeline and never mutated afterwards.
type Settings struct {
	MaxSteps               int
	MaxActionsPerStep      int
	MaxConsecutiveFailures int
	MaxParseRetries        int
	ModelRetries           int
	ObservationRetries     int
	ActionRetries          int

	ModelTimeout       time.Duration
	ObservationTimeout time.Duration
	ActionTimeout      time.Duration
	// RetryBaseDelay is the first backoff interval between retries.
	RetryBaseDelay time.Duration

	Plan StagePlan

	IncludeAttributes    []string
	MaxErrorLength       int
	UseVision            bool
	IncludePreviousState bool
	AlwaysMarkCutoff     bool
	MaxElementChars      int
	Temperature          float64
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MaxSteps:               100,
		MaxActionsPerStep:      10,
		MaxConsecutiveFailures: 3,
		MaxParseRetries:        1,
		ModelRetries:           3,
		ObservationRetries:     2,
		ActionRetries:          1,
		ModelTimeout:           60 * time.Second,
		ObservationTimeout:     30 * time.Second,
		ActionTimeout:          30 * time.Second,
		RetryBaseDelay:         500 * time.Millisecond,
		Plan:                   SinglePlan,
		IncludeAttributes:      dom.DefaultIncludeAttributes,
		MaxErrorLength:         prompts.DefaultMaxErrorLength,
		UseVision:              true,
		IncludePreviousState:   true,
		AlwaysMarkCutoff:       true,
	}
}

// SettingsFromConfig translates the agent section of the configuration.
func SettingsFromConfig(cfg config.AgentConfig) (Settings, error) {
	plan, err := PlanFor(cfg.Strategy, cfg.Stages)
	if err != nil {
		return Settings{}, err
	}
	s := DefaultSettings()
	s.MaxSteps = cfg.MaxSteps
	s.MaxActionsPerStep = cfg.MaxActionsPerStep
	s.MaxConsecutiveFailures = cfg.MaxConsecutiveFailures
	s.MaxParseRetries = cfg.MaxParseRetries
	s.ModelRetries = cfg.ModelRetries
	s.ObservationRetries = cfg.ObservationRetries
	s.ActionRetries = cfg.ActionRetries
	s.ModelTimeout = cfg.ModelTimeout
	s.ObservationTimeout = cfg.ObservationTimeout
	s.ActionTimeout = cfg.ActionTimeout
	s.Plan = plan
	if len(cfg.IncludeAttributes) > 0 {
		s.IncludeAttributes = cfg.IncludeAttributes
	}
	s.MaxErrorLength = cfg.MaxErrorLength
	s.UseVision = cfg.UseVision
	s.IncludePreviousState = cfg.IncludePreviousState
	s.AlwaysMarkCutoff = cfg.AlwaysMarkCutoff
	s.MaxElementChars = cfg.MaxElementChars
	s.Temperature = cfg.Temperature
	return s, s.Validate()
}

// Validate checks ceilings and timeouts.
func (s Settings) Validate() error {
	switch {
	case s.MaxSteps <= 0:
		return fmt.Errorf("max steps must be positive, got %d", s.MaxSteps)
	case s.MaxActionsPerStep <= 0:
		return fmt.Errorf("max actions per step must be positive, got %d", s.MaxActionsPerStep)
	case s.MaxConsecutiveFailures <= 0:
		return fmt.Errorf("max consecutive failures must be positive, got %d", s.MaxConsecutiveFailures)
	case s.MaxParseRetries < 0, s.ModelRetries < 0, s.ObservationRetries < 0, s.ActionRetries < 0:
		return fmt.Errorf("retry counts must not be negative")
	case s.ModelTimeout <= 0, s.ObservationTimeout <= 0, s.ActionTimeout <= 0:
		return fmt.Errorf("timeouts must be positive")
	}
	return s.Plan.Validate()
}

func (s Settings) observationOptions() prompts.ObservationOptions {
	return prompts.ObservationOptions{
		IncludeAttributes: s.IncludeAttributes,
		MaxErrorLength:    s.MaxErrorLength,
		Wrap:              dom.WrapOptions{AlwaysMark: s.AlwaysMarkCutoff, MaxChars: s.MaxElementChars},
	}
}
