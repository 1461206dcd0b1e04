package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultPenguinImage, cfg.Penguin.Image)
	assert.Equal(t, 300, cfg.Penguin.RunTimeoutSeconds())
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, DefaultOllamaHost, cfg.LLM.Host)
	assert.InDelta(t, 0.7, cfg.Planner.Temperature, 1e-6)
	assert.InDelta(t, 0.3, cfg.Planner.RetryTemperature, 1e-6)
	assert.InDelta(t, 0.3, cfg.Engineer.Temperature, 1e-6)
	assert.InDelta(t, 0.2, cfg.Engineer.RetryTemperature, 1e-6)
	assert.True(t, cfg.Context.KnowledgeBaseEnabled())
	assert.Equal(t, filepath.Join("projects", "tinker.db"), cfg.HistoryDBPath())
	require.NoError(t, cfg.Validate())
}

func TestParseKeepsExplicitZeroMaxOptions(t *testing.T) {
	cfg, err := Parse([]byte("engineer:\n  max_options: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Engineer.MaxOptions)

	cfg, err = Parse([]byte("engineer:\n  max_retries: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineerMaxOptions, cfg.Engineer.MaxOptions)
	assert.Equal(t, 4, cfg.Engineer.MaxRetries)
}

func TestParseSections(t *testing.T) {
	data := []byte(`
penguin:
  image: custom/penguin
  iteration_timeout: 2
  output_dir: /tmp/out
  max_iter: 7
llm:
  provider: anthropic
  model: claude-test
  api_key_env: MY_KEY
  retry_initial_delay: 250ms
context:
  console_token_budget: 100
  knowledge_base: false
general:
  metrics_file: /tmp/tinker.prom
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "custom/penguin", cfg.Penguin.Image)
	assert.Equal(t, 120, cfg.Penguin.RunTimeoutSeconds())
	assert.Equal(t, 7, cfg.Penguin.MaxIter)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Empty(t, cfg.LLM.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.RetryInitialDelay)
	assert.False(t, cfg.Context.KnowledgeBaseEnabled())
	assert.Equal(t, 100, cfg.Context.ConsoleTokenBudget)
	assert.Equal(t, "/tmp/tinker.prom", cfg.General.MetricsFile)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty image", func(c *Config) { c.Penguin.Image = "" }},
		{"negative timeout", func(c *Config) { c.Penguin.IterationTimeout = -1 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"no model", func(c *Config) { c.LLM.Model = "" }},
		{"negative cap", func(c *Config) { c.Engineer.MaxOptions = -2 }},
		{"zero planner attempts", func(c *Config) { c.Planner.MaxRetries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, DefaultEngineerMaxOptions, cfg.Engineer.MaxOptions)
}

func TestLoadAppliesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: from-file\n"), 0o644))

	t.Setenv(EnvModel, "from-env")
	t.Setenv(EnvVerbose, "true")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.True(t, cfg.General.Verbose)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("penguin: [unclosed"), 0o644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}
