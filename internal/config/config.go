// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	LLM() LLMRouterConfig
	Store() StoreConfig

	// Agent Setters
	SetAgentMaxSteps(int)
	SetAgentStrategy(string)
	SetAgentConcurrency(int)

	// Browser Setters
	SetBrowserHeadless(bool)
}

// Config holds the entire application configuration. Sections are exported so
// viper can populate them; callers go through the Interface getters.
type Config struct {
	LoggerCfg  LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	AgentCfg   AgentConfig     `mapstructure:"agent" yaml:"agent"`
	LLMCfg     LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	StoreCfg   StoreConfig     `mapstructure:"store" yaml:"store"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) LLM() LLMRouterConfig   { return c.LLMCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

// Agent Setters
func (c *Config) SetAgentMaxSteps(n int)    { c.AgentCfg.MaxSteps = n }
func (c *Config) SetAgentStrategy(s string) { c.AgentCfg.Strategy = s }
func (c *Config) SetAgentConcurrency(n int) { c.AgentCfg.Concurrency = n }

// Browser Setters
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser instances driven by the agent.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// NavigationTimeout bounds a single go_to_url or go_back.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// PostActionWait gives the page a moment to settle before change detection.
	PostActionWait time.Duration `mapstructure:"post_action_wait" yaml:"post_action_wait"`
}

// Prompt strategies.
const (
	StrategySingle = "single"
	StrategyStaged = "staged"
)

// AgentConfig holds settings for the step pipeline.
type AgentConfig struct {
	MaxSteps               int `mapstructure:"max_steps" yaml:"max_steps"`
	MaxActionsPerStep      int `mapstructure:"max_actions_per_step" yaml:"max_actions_per_step"`
	MaxConsecutiveFailures int `mapstructure:"max_failures" yaml:"max_failures"`
	MaxParseRetries        int `mapstructure:"max_parse_retries" yaml:"max_parse_retries"`
	ModelRetries           int `mapstructure:"model_retries" yaml:"model_retries"`
	ObservationRetries     int `mapstructure:"observation_retries" yaml:"observation_retries"`
	ActionRetries          int `mapstructure:"action_retries" yaml:"action_retries"`

	ModelTimeout       time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`
	ObservationTimeout time.Duration `mapstructure:"observation_timeout" yaml:"observation_timeout"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`

	// Strategy is "single" or "staged". Stages, when set, overrides the plan
	// implied by Strategy.
	Strategy string   `mapstructure:"strategy" yaml:"strategy"`
	Stages   []string `mapstructure:"stages" yaml:"stages"`

	IncludeAttributes    []string `mapstructure:"include_attributes" yaml:"include_attributes"`
	MaxErrorLength       int      `mapstructure:"max_error_length" yaml:"max_error_length"`
	UseVision            bool     `mapstructure:"use_vision" yaml:"use_vision"`
	IncludePreviousState bool     `mapstructure:"include_previous_state" yaml:"include_previous_state"`
	AlwaysMarkCutoff     bool     `mapstructure:"always_mark_cutoff" yaml:"always_mark_cutoff"`
	MaxElementChars      int      `mapstructure:"max_element_chars" yaml:"max_element_chars"`
	Temperature          float64  `mapstructure:"temperature" yaml:"temperature"`

	// Concurrency caps how many runs the fleet executes at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOllama LLMProvider = "ollama"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider   LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model      string        `mapstructure:"model" yaml:"model"`
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	TopP       float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK       int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens  int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RateLimit is the sustained requests per second allowed against the provider.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// StoreConfig selects where run history is kept.
type StoreConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	URL  string `mapstructure:"url" yaml:"-"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 1100})
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.post_action_wait", "500ms")

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.max_actions_per_step", 10)
	v.SetDefault("agent.max_failures", 3)
	v.SetDefault("agent.max_parse_retries", 1)
	v.SetDefault("agent.model_retries", 3)
	v.SetDefault("agent.observation_retries", 2)
	v.SetDefault("agent.action_retries", 1)
	v.SetDefault("agent.model_timeout", "60s")
	v.SetDefault("agent.observation_timeout", "30s")
	v.SetDefault("agent.action_timeout", "30s")
	v.SetDefault("agent.strategy", StrategySingle)
	v.SetDefault("agent.include_attributes", []string{
		"title", "type", "name", "role", "tabindex", "aria-label", "placeholder", "value", "alt", "aria-expanded",
	})
	v.SetDefault("agent.max_error_length", 400)
	v.SetDefault("agent.use_vision", true)
	v.SetDefault("agent.include_previous_state", true)
	v.SetDefault("agent.always_mark_cutoff", true)
	v.SetDefault("agent.max_element_chars", 0)
	v.SetDefault("agent.temperature", 0.0)
	v.SetDefault("agent.concurrency", 1)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.models", map[string]any{
		"gemini-flash": map[string]any{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "90s",
			"rate_limit":  2.0,
			"burst":       2,
		},
		"gemini-pro": map[string]any{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-pro",
			"api_timeout": "120s",
			"rate_limit":  1.0,
			"burst":       1,
		},
	})

	// -- Store --
	v.SetDefault("store.type", StoreMemory)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.url", "WEBPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Provider keys are per model; fall back to the conventional env var for Gemini.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		for name, m := range cfg.LLMCfg.Models {
			if m.Provider == ProviderGemini && m.APIKey == "" {
				m.APIKey = key
				cfg.LLMCfg.Models[name] = m
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.MaxActionsPerStep <= 0 {
		return fmt.Errorf("max_actions_per_step must be a positive integer")
	}
	if a.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_failures must be a positive integer")
	}
	if a.MaxParseRetries < 0 || a.ModelRetries < 0 || a.ObservationRetries < 0 || a.ActionRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	if a.ModelTimeout <= 0 || a.ObservationTimeout <= 0 || a.ActionTimeout <= 0 {
		return fmt.Errorf("model_timeout, observation_timeout and action_timeout must be positive durations")
	}
	if len(a.Stages) == 0 && a.Strategy != StrategySingle && a.Strategy != StrategyStaged {
		return fmt.Errorf("strategy must be %q or %q, got %q", StrategySingle, StrategyStaged, a.Strategy)
	}
	if a.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	return nil
}

// Validate checks that both routing tiers point at a configured model with a
// supported provider.
func (l *LLMRouterConfig) Validate() error {
	for _, tier := range []struct{ key, name string }{
		{"default_fast_model", l.DefaultFastModel},
		{"default_powerful_model", l.DefaultPowerfulModel},
	} {
		if tier.name == "" {
			return fmt.Errorf("%s is required", tier.key)
		}
		m, ok := l.Models[tier.name]
		if !ok {
			return fmt.Errorf("%s refers to unknown model %q", tier.key, tier.name)
		}
		switch m.Provider {
		case ProviderGemini, ProviderOllama:
		default:
			return fmt.Errorf("model %q has unsupported provider %q", tier.name, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("model %q is missing its model name", tier.name)
		}
	}
	return nil
}

// Validate checks the StoreConfig settings.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case StoreMemory:
		return nil
	case StorePostgres:
		if s.URL == "" {
			return fmt.Errorf("store.url is required for the postgres store. Set WEBPILOT_DATABASE_URL")
		}
		return nil
	default:
		return fmt.Errorf("unknown store type %q", s.Type)
	}
}
