package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// LoggerConfig controls the zap logger bootstrap.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// AgentConfig bounds the step loop.
type AgentConfig struct {
	// MaxSteps is the global step budget; reaching it without a terminal
	// action ends the run as incomplete.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// StepTimeout bounds one full decide+dispatch cycle.
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	// RePromptAttempts is how many times a malformed oracle decision is
	// re-prompted before the run fails.
	RePromptAttempts int `mapstructure:"re_prompt_attempts" yaml:"re_prompt_attempts"`
	// UnknownActionBudget is how many consecutive unknown-capability
	// decisions are tolerated before the run fails.
	UnknownActionBudget int `mapstructure:"unknown_action_budget" yaml:"unknown_action_budget"`
	// StreamBuffer sizes the stream emitter's delivery channel.
	StreamBuffer int `mapstructure:"stream_buffer" yaml:"stream_buffer"`
}

// RetryConfig is a per-capability retry policy for transient target faults.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	MinBackoff  time.Duration `mapstructure:"min_backoff" yaml:"min_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// LLMModelConfig configures one provider backend.
type LLMModelConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// LLMProviders enumerates the configured backends.
type LLMProviders struct {
	Gemini LLMModelConfig `mapstructure:"gemini" yaml:"gemini"`
	OpenAI LLMModelConfig `mapstructure:"openai" yaml:"openai"`
}

// LLMConfig selects and tunes the decision oracle's provider.
type LLMConfig struct {
	// Provider selects the active backend: "gemini" or "openai".
	Provider string `mapstructure:"provider" yaml:"provider"`
	// RequestsPerMinute rate-limits decision calls across the run.
	RequestsPerMinute int          `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Providers         LLMProviders `mapstructure:"providers" yaml:"providers"`
}

// BrowserConfig controls the chromedp target.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth     int64         `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int64         `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// PostNavigationWait is the settle delay after a navigation completes.
	PostNavigationWait time.Duration `mapstructure:"post_navigation_wait" yaml:"post_navigation_wait"`
	// DetectSheets switches the element detector into spreadsheet-grid mode.
	DetectSheets bool `mapstructure:"detect_sheets" yaml:"detect_sheets"`
	// NavigationRetry is the retry policy for transient navigation faults.
	NavigationRetry RetryConfig `mapstructure:"navigation_retry" yaml:"navigation_retry"`
}

// NewDefaultConfig returns a Config with production defaults applied.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "navigator-cli",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
			Colors: ColorConfig{
				Debug: "cyan",
				Info:  "green",
				Warn:  "yellow",
				Error: "red",
				Fatal: "magenta",
			},
		},
		Agent: AgentConfig{
			MaxSteps:            100,
			StepTimeout:         5 * time.Minute,
			RePromptAttempts:    1,
			UnknownActionBudget: 3,
			StreamBuffer:        64,
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			RequestsPerMinute: 30,
			Providers: LLMProviders{
				Gemini: LLMModelConfig{
					Model:       "gemini-2.0-flash",
					Temperature: 0.2,
					MaxTokens:   4096,
					APITimeout:  2 * time.Minute,
				},
				OpenAI: LLMModelConfig{
					Model:       "gpt-4o",
					Temperature: 0.2,
					MaxTokens:   4096,
					APITimeout:  2 * time.Minute,
				},
			},
		},
		Browser: BrowserConfig{
			Headless:           true,
			ViewportWidth:      1280,
			ViewportHeight:     900,
			NavigationTimeout:  60 * time.Second,
			PostNavigationWait: 2 * time.Second,
			NavigationRetry: RetryConfig{
				MaxAttempts: 3,
				MinBackoff:  1 * time.Second,
				MaxBackoff:  10 * time.Second,
			},
		},
	}
}

// SetDefaults registers default values on the given viper instance so that
// partial config files and env overrides merge cleanly.
func SetDefaults(v *viper.Viper) {
	def := NewDefaultConfig()

	v.SetDefault("logger.level", def.Logger.Level)
	v.SetDefault("logger.format", def.Logger.Format)
	v.SetDefault("logger.service_name", def.Logger.ServiceName)
	v.SetDefault("logger.max_size", def.Logger.MaxSize)
	v.SetDefault("logger.max_backups", def.Logger.MaxBackups)
	v.SetDefault("logger.max_age", def.Logger.MaxAge)
	v.SetDefault("logger.colors.debug", def.Logger.Colors.Debug)
	v.SetDefault("logger.colors.info", def.Logger.Colors.Info)
	v.SetDefault("logger.colors.warn", def.Logger.Colors.Warn)
	v.SetDefault("logger.colors.error", def.Logger.Colors.Error)
	v.SetDefault("logger.colors.fatal", def.Logger.Colors.Fatal)

	v.SetDefault("agent.max_steps", def.Agent.MaxSteps)
	v.SetDefault("agent.step_timeout", def.Agent.StepTimeout)
	v.SetDefault("agent.re_prompt_attempts", def.Agent.RePromptAttempts)
	v.SetDefault("agent.unknown_action_budget", def.Agent.UnknownActionBudget)
	v.SetDefault("agent.stream_buffer", def.Agent.StreamBuffer)

	v.SetDefault("llm.provider", def.LLM.Provider)
	v.SetDefault("llm.requests_per_minute", def.LLM.RequestsPerMinute)
	v.SetDefault("llm.providers.gemini.model", def.LLM.Providers.Gemini.Model)
	v.SetDefault("llm.providers.gemini.temperature", def.LLM.Providers.Gemini.Temperature)
	v.SetDefault("llm.providers.gemini.max_tokens", def.LLM.Providers.Gemini.MaxTokens)
	v.SetDefault("llm.providers.gemini.api_timeout", def.LLM.Providers.Gemini.APITimeout)
	v.SetDefault("llm.providers.openai.model", def.LLM.Providers.OpenAI.Model)
	v.SetDefault("llm.providers.openai.temperature", def.LLM.Providers.OpenAI.Temperature)
	v.SetDefault("llm.providers.openai.max_tokens", def.LLM.Providers.OpenAI.MaxTokens)
	v.SetDefault("llm.providers.openai.api_timeout", def.LLM.Providers.OpenAI.APITimeout)

	v.SetDefault("browser.headless", def.Browser.Headless)
	v.SetDefault("browser.viewport_width", def.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", def.Browser.ViewportHeight)
	v.SetDefault("browser.navigation_timeout", def.Browser.NavigationTimeout)
	v.SetDefault("browser.post_navigation_wait", def.Browser.PostNavigationWait)
	v.SetDefault("browser.navigation_retry.max_attempts", def.Browser.NavigationRetry.MaxAttempts)
	v.SetDefault("browser.navigation_retry.min_backoff", def.Browser.NavigationRetry.MinBackoff)
	v.SetDefault("browser.navigation_retry.max_backoff", def.Browser.NavigationRetry.MaxBackoff)
}

// Load reads configuration from the optional file path, NAVIGATOR_* env
// vars, and defaults, in ascending precedence of defaults < file < env.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("navigator")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("NAVIGATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.StepTimeout <= 0 {
		return fmt.Errorf("agent.step_timeout must be positive, got %s", c.Agent.StepTimeout)
	}
	if c.Agent.RePromptAttempts < 0 {
		return fmt.Errorf("agent.re_prompt_attempts must not be negative, got %d", c.Agent.RePromptAttempts)
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown llm.provider: %q", c.LLM.Provider)
	}
	if c.Browser.NavigationRetry.MaxAttempts < 1 {
		return fmt.Errorf("browser.navigation_retry.max_attempts must be at least 1, got %d", c.Browser.NavigationRetry.MaxAttempts)
	}
	return nil
}
