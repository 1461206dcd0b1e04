package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tinker/pkg/logx"
)

// Environment overrides applied after the file is read.
const (
	EnvModel     = "TINKER_MODEL"
	EnvProvider  = "TINKER_LLM_PROVIDER"
	EnvHost      = "TINKER_LLM_HOST"
	EnvVerbose   = "TINKER_VERBOSE"
	EnvOutputDir = "TINKER_OUTPUT_DIR"
)

// Load reads the settings file at path, applies defaults and environment
// overrides, and validates the result. A missing file yields defaults.
func Load(path string, logger *logx.Logger) (Config, error) {
	if logger == nil {
		logger = logx.Nop()
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("Settings file %s not found, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("failed to read settings %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}

	// Unset max_options means the default cap, not "unlimited".
	if !hasKey(data, "engineer", "max_options") {
		cfg.Engineer.MaxOptions = DefaultEngineerMaxOptions
	}

	applyDefaults(&cfg)
	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes settings from YAML bytes without touching the environment.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	if !hasKey(data, "engineer", "max_options") {
		cfg.Engineer.MaxOptions = DefaultEngineerMaxOptions
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := getenv(EnvProvider); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := getenv(EnvHost); v != "" {
		cfg.LLM.Host = v
	}
	if v := getenv(EnvOutputDir); v != "" {
		cfg.Penguin.OutputDir = v
	}
	if v := getenv(EnvVerbose); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.General.Verbose = b
		}
	}
}

// hasKey reports whether section.key is present in the YAML document.
func hasKey(data []byte, section, key string) bool {
	if len(data) == 0 {
		return false
	}
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, ok := raw[section][key]
	return ok
}
