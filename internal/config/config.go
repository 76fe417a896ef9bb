// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	LLM() LLMModelConfig
	Vision() VisionConfig

	// Logger Setters
	SetLoggerLevel(string)

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserDebug(bool)

	// Agent Setters
	SetAgentMaxSteps(int)
	SetAgentUseVision(bool)

	// LLM Setters
	SetLLMModel(string)
}

// Config holds the entire application configuration.
// It uses private fields to enforce access through the Interface's getter methods.
type Config struct {
	logger  LoggerConfig
	browser BrowserConfig
	agent   AgentConfig
	llm     LLMModelConfig
	vision  VisionConfig
}

// fileConfig mirrors Config with exported fields so viper can decode into it.
type fileConfig struct {
	Logger  LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig    `mapstructure:"agent" yaml:"agent"`
	LLM     LLMModelConfig `mapstructure:"llm" yaml:"llm"`
	Vision  VisionConfig   `mapstructure:"vision" yaml:"vision"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.logger }
func (c *Config) Browser() BrowserConfig { return c.browser }
func (c *Config) Agent() AgentConfig     { return c.agent }
func (c *Config) LLM() LLMModelConfig    { return c.llm }
func (c *Config) Vision() VisionConfig   { return c.vision }

func (c *Config) SetLoggerLevel(level string) { c.logger.Level = level }

func (c *Config) SetBrowserHeadless(b bool) { c.browser.Headless = b }
func (c *Config) SetBrowserDebug(b bool)    { c.browser.Debug = b }

func (c *Config) SetAgentMaxSteps(n int)   { c.agent.MaxSteps = n }
func (c *Config) SetAgentUseVision(b bool) { c.agent.UseVision = b }

func (c *Config) SetLLMModel(model string) { c.llm.Model = model }

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

// BrowserConfig holds settings for the controlled browser instance.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
	UserDataDir       string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	MaxElementText    int            `mapstructure:"max_element_text" yaml:"max_element_text"`
	StartURL          string         `mapstructure:"start_url" yaml:"start_url"`
}

// AgentConfig bounds the control loop.
type AgentConfig struct {
	MaxSteps               int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	SettleInterval         time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`
	UseVision              bool          `mapstructure:"use_vision" yaml:"use_vision"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGroq   LLMProvider = "groq"
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for the decision-making model.
type LLMModelConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetryElapsed   time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

// VisionConfig points at the detection/OCR sidecar.
type VisionConfig struct {
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return fc.toConfig()
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pilot")
	v.SetDefault("logger.log_file", "~/.pilot/pilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.user_data_dir", "~/.pilot/browser-data")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "20s")
	v.SetDefault("browser.max_element_text", 100)
	v.SetDefault("browser.start_url", "about:blank")

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.max_consecutive_failures", 3)
	v.SetDefault("agent.settle_interval", "1s")
	v.SetDefault("agent.use_vision", false)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGroq))
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.api_timeout", "90s")
	v.SetDefault("llm.temperature", 0.6)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.requests_per_minute", 30.0)
	v.SetDefault("llm.max_retry_elapsed", "2m")

	// -- Vision --
	v.SetDefault("vision.endpoint", "http://127.0.0.1:8765/analyze")
	v.SetDefault("vision.timeout", "30s")
	v.SetDefault("vision.requests_per_second", 2.0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for provider credentials.
	_ = v.BindEnv("llm.api_key", "PILOT_LLM_API_KEY")

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Fall back to the provider's conventional variable when no key was configured.
	if fc.LLM.APIKey == "" {
		fc.LLM.APIKey = apiKeyFromEnv(fc.LLM.Provider)
	}

	cfg := fc.toConfig()
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func apiKeyFromEnv(provider LLMProvider) string {
	switch provider {
	case ProviderGroq:
		return os.Getenv("GROQ_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

func (fc fileConfig) toConfig() *Config {
	return &Config{
		logger:  fc.Logger,
		browser: fc.Browser,
		agent:   fc.Agent,
		llm:     fc.LLM,
		vision:  fc.Vision,
	}
}

// expandPaths resolves a leading ~ in path-valued settings.
func (c *Config) expandPaths() error {
	var err error
	if c.logger.LogFile, err = homedir.Expand(c.logger.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	if c.browser.UserDataDir, err = homedir.Expand(c.browser.UserDataDir); err != nil {
		return fmt.Errorf("failed to expand browser.user_data_dir: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.llm.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.agent.UseVision && c.vision.Endpoint == "" {
		return fmt.Errorf("vision.endpoint is required when agent.use_vision is enabled")
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be greater than 0")
	}
	if a.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be greater than 0")
	}
	if a.SettleInterval < 0 {
		return fmt.Errorf("settle_interval must not be negative")
	}
	return nil
}

// Validate checks the LLMModelConfig settings.
func (l *LLMModelConfig) Validate() error {
	switch l.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unsupported provider '%s'", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if l.TopP < 0 || l.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1")
	}
	return nil
}

// SetAgent replaces the agent section.
func (c *Config) SetAgent(a AgentConfig) { c.agent = a }

// SetLLM replaces the llm section.
func (c *Config) SetLLM(l LLMModelConfig) { c.llm = l }

// SetVision replaces the vision section.
func (c *Config) SetVision(v VisionConfig) { c.vision = v }

// SetBrowser replaces the browser section.
func (c *Config) SetBrowser(b BrowserConfig) { c.browser = b }
