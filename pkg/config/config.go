// Package config defines tinker's settings document.
//
// Settings are loaded once at startup from a YAML file, completed with
// defaults and TINKER_* environment overrides, validated, and then passed by
// value to every component that needs them. There is no package-level
// instance: a component only sees the settings it was constructed with.
//
// Sections mirror the rehosting loop:
//
//   - penguin: how to invoke the external rehosting engine
//   - llm: which provider/model answers planner and engineer prompts
//   - planner, engineer: retry and sampling schedules for each LLM role
//   - context: how much of the engine's output is fed back to the planner
//   - general: verbosity and optional history/journal/metrics outputs
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Supported LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Defaults.
const (
	DefaultConfigFile          = "tinker.yaml"
	DefaultPenguinBinary       = "penguin"
	DefaultPenguinImage        = "rehosting/penguin"
	DefaultIterationTimeoutMin = 5
	DefaultOutputDir           = "projects"
	DefaultMaxIterations       = 5
	DefaultModel               = "llama3.3:latest"
	DefaultOllamaHost          = "http://localhost:11434"
	DefaultPlannerRetries      = 3
	DefaultPlannerMaxTokens    = 2048
	DefaultPlannerTemperature  = 0.7
	DefaultPlannerRetryTemp    = 0.3
	DefaultEngineerRetries     = 2
	DefaultEngineerMaxOptions  = 3
	DefaultEngineerMaxTokens   = 1024
	DefaultEngineerTemperature = 0.3
	DefaultEngineerRetryTemp   = 0.2
	DefaultConsoleTokenBudget  = 6000
	DefaultLLMTransportRetries = 3
	DefaultBreakerThreshold    = 5
	DefaultHistoryDBName       = "tinker.db"
)

// Config is the complete settings document.
type Config struct {
	Penguin  Penguin  `yaml:"penguin"`
	LLM      LLM      `yaml:"llm"`
	Planner  Planner  `yaml:"planner"`
	Engineer Engineer `yaml:"engineer"`
	Context  Context  `yaml:"context"`
	General  General  `yaml:"general"`
}

// Penguin configures the external rehosting engine.
type Penguin struct {
	Binary           string `yaml:"binary"`
	Image            string `yaml:"image"`
	IterationTimeout int    `yaml:"iteration_timeout"` // minutes
	OutputDir        string `yaml:"output_dir"`
	MaxIter          int    `yaml:"max_iter"`
}

// RunTimeoutSeconds is the value passed to the engine's --timeout flag.
func (p Penguin) RunTimeoutSeconds() int {
	return p.IterationTimeout * 60
}

// LLM selects and tunes the model provider.
type LLM struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Host              string        `yaml:"host"`        // Ollama URL or OpenAI-compatible base URL
	APIKeyEnv         string        `yaml:"api_key_env"` // name of the env var holding the key
	MaxRetries        int           `yaml:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	BreakerThreshold  int           `yaml:"breaker_threshold"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
}

// Planner tunes plan generation.
type Planner struct {
	MaxRetries       int     `yaml:"max_retries"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float32 `yaml:"temperature"`
	RetryTemperature float32 `yaml:"retry_temperature"`
}

// Engineer tunes option resolution and execution.
type Engineer struct {
	MaxRetries       int     `yaml:"max_retries"`
	MaxOptions       int     `yaml:"max_options"` // 0 executes every option
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float32 `yaml:"temperature"`
	RetryTemperature float32 `yaml:"retry_temperature"`
}

// Context controls what is fed back to the planner.
type Context struct {
	ConsoleTokenBudget int   `yaml:"console_token_budget"`
	KnowledgeBase      *bool `yaml:"knowledge_base"`
}

// KnowledgeBaseEnabled reports whether guidance is added to prompts (default on).
func (c Context) KnowledgeBaseEnabled() bool {
	return c.KnowledgeBase == nil || *c.KnowledgeBase
}

// General holds process-level switches.
type General struct {
	Verbose     bool   `yaml:"verbose"`
	HistoryDB   string `yaml:"history_db"`
	EventLogDir string `yaml:"event_log_dir"`
	MetricsFile string `yaml:"metrics_file"`
}

// HistoryDBPath resolves the history database location.
func (c *Config) HistoryDBPath() string {
	if c.General.HistoryDB != "" {
		return c.General.HistoryDB
	}
	return filepath.Join(c.Penguin.OutputDir, DefaultHistoryDBName)
}

// Default returns a fully defaulted configuration.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Penguin.Binary == "" {
		cfg.Penguin.Binary = DefaultPenguinBinary
	}
	if cfg.Penguin.Image == "" {
		cfg.Penguin.Image = DefaultPenguinImage
	}
	if cfg.Penguin.IterationTimeout == 0 {
		cfg.Penguin.IterationTimeout = DefaultIterationTimeoutMin
	}
	if cfg.Penguin.OutputDir == "" {
		cfg.Penguin.OutputDir = DefaultOutputDir
	}
	if cfg.Penguin.MaxIter == 0 {
		cfg.Penguin.MaxIter = DefaultMaxIterations
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOllama
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.Host == "" && cfg.LLM.Provider == ProviderOllama {
		cfg.LLM.Host = DefaultOllamaHost
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = DefaultLLMTransportRetries
	}
	if cfg.LLM.RetryInitialDelay == 0 {
		cfg.LLM.RetryInitialDelay = time.Second
	}
	if cfg.LLM.BreakerThreshold == 0 {
		cfg.LLM.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.LLM.BreakerTimeout == 0 {
		cfg.LLM.BreakerTimeout = 30 * time.Second
	}

	if cfg.Planner.MaxRetries == 0 {
		cfg.Planner.MaxRetries = DefaultPlannerRetries
	}
	if cfg.Planner.MaxTokens == 0 {
		cfg.Planner.MaxTokens = DefaultPlannerMaxTokens
	}
	if cfg.Planner.Temperature == 0 {
		cfg.Planner.Temperature = DefaultPlannerTemperature
	}
	if cfg.Planner.RetryTemperature == 0 {
		cfg.Planner.RetryTemperature = DefaultPlannerRetryTemp
	}

	if cfg.Engineer.MaxRetries == 0 {
		cfg.Engineer.MaxRetries = DefaultEngineerRetries
	}
	// MaxOptions: 0 is meaningful (unlimited), so only negative values are replaced.
	if cfg.Engineer.MaxOptions < 0 {
		cfg.Engineer.MaxOptions = DefaultEngineerMaxOptions
	}
	if cfg.Engineer.MaxTokens == 0 {
		cfg.Engineer.MaxTokens = DefaultEngineerMaxTokens
	}
	if cfg.Engineer.Temperature == 0 {
		cfg.Engineer.Temperature = DefaultEngineerTemperature
	}
	if cfg.Engineer.RetryTemperature == 0 {
		cfg.Engineer.RetryTemperature = DefaultEngineerRetryTemp
	}

	if cfg.Context.ConsoleTokenBudget == 0 {
		cfg.Context.ConsoleTokenBudget = DefaultConsoleTokenBudget
	}
}

// Validate checks the settings required to run the loop.
func (c *Config) Validate() error {
	if c.Penguin.Image == "" {
		return fmt.Errorf("penguin.image is required")
	}
	if c.Penguin.IterationTimeout <= 0 {
		return fmt.Errorf("penguin.iteration_timeout must be positive, got %d", c.Penguin.IterationTimeout)
	}
	if c.Penguin.OutputDir == "" {
		return fmt.Errorf("penguin.output_dir is required")
	}
	if c.Penguin.MaxIter < 0 {
		return fmt.Errorf("penguin.max_iter cannot be negative")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.Planner.MaxRetries < 1 {
		return fmt.Errorf("planner.max_retries must be at least 1")
	}
	if c.Engineer.MaxRetries < 1 {
		return fmt.Errorf("engineer.max_retries must be at least 1")
	}
	if c.Engineer.MaxOptions < 0 {
		return fmt.Errorf("engineer.max_options cannot be negative")
	}
	if c.Context.ConsoleTokenBudget < 0 {
		return fmt.Errorf("context.console_token_budget cannot be negative")
	}
	return nil
}
