// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig

	// Browser setters, driven by CLI flags.
	SetBrowserHeadless(bool)
	SetBrowserUseVision(bool)

	// Agent setters, driven by CLI flags.
	SetAgentMaxSteps(int)
	SetAgentHistoryFile(string)

	// Validate re-checks the configuration after flag overrides.
	Validate() error
}

// Config holds the entire application configuration. Private fields enforce
// access through the Interface's getter methods.
type Config struct {
	logger  LoggerConfig
	browser BrowserConfig
	agent   AgentConfig
}

// configData is the exported mirror viper unmarshals into; mapstructure
// cannot populate unexported fields directly.
type configData struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
}

func (d configData) toConfig() *Config {
	return &Config{logger: d.Logger, browser: d.Browser, agent: d.Agent}
}

// --- Interface Method Implementations ---

func (c *Config) Logger() LoggerConfig   { return c.logger }
func (c *Config) Browser() BrowserConfig { return c.browser }
func (c *Config) Agent() AgentConfig     { return c.agent }

func (c *Config) SetBrowserHeadless(b bool)    { c.browser.Headless = b }
func (c *Config) SetBrowserUseVision(b bool)   { c.browser.UseVision = b }
func (c *Config) SetAgentMaxSteps(n int)       { c.agent.MaxSteps = n }
func (c *Config) SetAgentHistoryFile(p string) { c.agent.HistoryFile = p }

// LoggerConfig configures the zap logger bootstrap.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig configures the Chrome session the agent drives.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ChromePath        string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	// UseVision attaches a screenshot to every observation.
	UseVision bool `mapstructure:"use_vision" yaml:"use_vision"`
}

// AgentConfig configures the step/run control loop.
type AgentConfig struct {
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxFailures       int           `mapstructure:"max_failures" yaml:"max_failures"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxActionsPerStep int           `mapstructure:"max_actions_per_step" yaml:"max_actions_per_step"`
	MaxInputTokens    int           `mapstructure:"max_input_tokens" yaml:"max_input_tokens"`
	// PlannerInterval runs the planning call every N steps; 0 disables it.
	PlannerInterval    int           `mapstructure:"planner_interval" yaml:"planner_interval"`
	ValidateOutput     bool          `mapstructure:"validate_output" yaml:"validate_output"`
	WaitBetweenActions time.Duration `mapstructure:"wait_between_actions" yaml:"wait_between_actions"`
	PausePollInterval  time.Duration `mapstructure:"pause_poll_interval" yaml:"pause_poll_interval"`
	HistoryFile        string        `mapstructure:"history_file" yaml:"history_file"`
	// StepLogDir, when set, receives a per-run markdown summary of every step.
	StepLogDir string `mapstructure:"step_log_dir" yaml:"step_log_dir"`
	// ConversationDir, when set, receives the full oracle prompt and decision
	// per step.
	ConversationDir string          `mapstructure:"conversation_dir" yaml:"conversation_dir"`
	LLM             LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider identifies a supported model provider.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMRouterConfig configures the model routing logic. The provider-level API
// keys are the fallback for every model that carries no key of its own; they
// are what the BROWSERPILOT_*_API_KEY environment bindings fill.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	GeminiAPIKey         string                    `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	OpenAIAPIKey         string                    `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute caps outbound calls to this model; 0 means no cap.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ModelConfig resolves the configuration block for a model name. Names with
// no explicit block get a minimal config with the provider inferred from the
// model family. Env-bound provider keys are applied here, at resolution time,
// so models that never appear in the config file still get their key. (Model
// names routinely contain dots, which viper treats as key separators, so
// per-model map entries cannot be relied on to exist.)
func (r LLMRouterConfig) ModelConfig(name string) LLMModelConfig {
	cfg, ok := r.Models[name]
	if !ok {
		cfg = LLMModelConfig{}
	}
	if cfg.Model == "" {
		cfg.Model = name
	}
	if cfg.Provider == "" {
		cfg.Provider = inferProvider(cfg.Model)
	}
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case ProviderGemini:
			cfg.APIKey = r.GeminiAPIKey
		case ProviderOpenAI:
			cfg.APIKey = r.OpenAIAPIKey
		}
	}
	return cfg
}

func inferProvider(model string) LLMProvider {
	if strings.HasPrefix(model, "gemini") {
		return ProviderGemini
	}
	return ProviderOpenAI
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var data configData
	if err := v.Unmarshal(&data); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return data.toConfig()
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "browserpilot")
	v.SetDefault("logger.log_file", "browserpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 1024)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "1s")
	v.SetDefault("browser.use_vision", false)

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.max_failures", 3)
	v.SetDefault("agent.retry_delay", "10s")
	v.SetDefault("agent.max_actions_per_step", 10)
	v.SetDefault("agent.max_input_tokens", 128000)
	v.SetDefault("agent.planner_interval", 0)
	v.SetDefault("agent.validate_output", false)
	v.SetDefault("agent.wait_between_actions", "500ms")
	v.SetDefault("agent.pause_poll_interval", "200ms")
	v.SetDefault("agent.history_file", "AgentHistory.json")
	v.SetDefault("agent.step_log_dir", "")
	v.SetDefault("agent.conversation_dir", "")

	// -- Agent LLM --
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("agent.llm.gemini_api_key", "BROWSERPILOT_GEMINI_API_KEY")
	v.BindEnv("agent.llm.openai_api_key", "BROWSERPILOT_OPENAI_API_KEY")

	var data configData
	if err := v.Unmarshal(&data); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg := *data.toConfig()

	cfg.normalizeModels()
	// Propagate environment keys into model configs that omit their own.
	applyEnvKeys(v, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalizeModels completes explicit model blocks that omit the model name or
// provider, inferring the provider from the model family.
func (c *Config) normalizeModels() {
	for name, mc := range c.agent.LLM.Models {
		if mc.Model == "" {
			mc.Model = name
		}
		if mc.Provider == "" {
			mc.Provider = inferProvider(mc.Model)
		}
		c.agent.LLM.Models[name] = mc
	}
}

// applyEnvKeys fills the provider-level API keys from the env bindings.
// Viper's Unmarshal does not surface env-only values, so the bound keys are
// read explicitly. ModelConfig applies them per model at resolution time.
func applyEnvKeys(v *viper.Viper, cfg *Config) {
	if cfg.agent.LLM.GeminiAPIKey == "" {
		cfg.agent.LLM.GeminiAPIKey = v.GetString("agent.llm.gemini_api_key")
	}
	if cfg.agent.LLM.OpenAIAPIKey == "" {
		cfg.agent.LLM.OpenAIAPIKey = v.GetString("agent.llm.openai_api_key")
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.agent.MaxFailures <= 0 {
		return fmt.Errorf("agent.max_failures must be a positive integer")
	}
	if c.agent.MaxActionsPerStep <= 0 {
		return fmt.Errorf("agent.max_actions_per_step must be a positive integer")
	}
	if c.agent.MaxInputTokens <= 0 {
		return fmt.Errorf("agent.max_input_tokens must be a positive integer")
	}
	if c.agent.PausePollInterval <= 0 {
		return fmt.Errorf("agent.pause_poll_interval must be a positive duration")
	}
	for name, mc := range c.agent.LLM.Models {
		switch mc.Provider {
		case ProviderGemini, ProviderOpenAI:
		default:
			return fmt.Errorf("model %q has unknown provider %q (supported: %s, %s)",
				name, mc.Provider, ProviderGemini, ProviderOpenAI)
		}
	}
	return nil
}
