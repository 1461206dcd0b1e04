// Package agent builds LLM clients with their middleware chain.
package agent

import (
	"context"
	"fmt"
	"os"

	"tinker/pkg/agent/internal/llmimpl/anthropic"
	"tinker/pkg/agent/internal/llmimpl/google"
	"tinker/pkg/agent/internal/llmimpl/ollama"
	"tinker/pkg/agent/internal/llmimpl/openaiofficial"
	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/middleware/metrics"
	"tinker/pkg/agent/middleware/resilience/circuit"
	"tinker/pkg/agent/middleware/resilience/retry"
	"tinker/pkg/config"
	"tinker/pkg/logx"
)

// defaultKeyEnv lists the environment variables consulted, in order, when
// api_key_env is not configured.
var defaultKeyEnv = map[string][]string{
	config.ProviderOpenAI:    {"OPENAI_API_KEY"},
	config.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	config.ProviderGoogle:    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
}

// LLMClientFactory creates LLM clients with a configured middleware chain.
type LLMClientFactory struct {
	cfg      config.LLM
	recorder metrics.Recorder
	logger   *logx.Logger
	getenv   func(string) string
}

// NewLLMClientFactory creates a factory. A nil recorder disables metrics.
func NewLLMClientFactory(cfg config.LLM, recorder metrics.Recorder, logger *logx.Logger) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &LLMClientFactory{cfg: cfg, recorder: recorder, logger: logger, getenv: os.Getenv}
}

// NewClient is shorthand for NewLLMClientFactory(cfg, recorder, logger).CreateClient(ctx).
func NewClient(ctx context.Context, cfg config.LLM, recorder metrics.Recorder, logger *logx.Logger) (llm.LLMClient, error) {
	return NewLLMClientFactory(cfg, recorder, logger).CreateClient(ctx)
}

// CreateClient builds the provider client and wraps it:
// Metrics -> CircuitBreaker -> Retry -> RawClient.
func (f *LLMClientFactory) CreateClient(_ context.Context) (llm.LLMClient, error) {
	raw, err := f.rawClient()
	if err != nil {
		return nil, err
	}
	return f.wrap(raw), nil
}

func (f *LLMClientFactory) wrap(raw llm.LLMClient) llm.LLMClient {
	return llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, f.logger),
		circuit.Middleware(circuit.Config{
			FailureThreshold: f.cfg.BreakerThreshold,
			Timeout:          f.cfg.BreakerTimeout,
		}, f.logger),
		retry.Middleware(retry.Config{
			MaxAttempts:  f.cfg.MaxRetries,
			InitialDelay: f.cfg.RetryInitialDelay,
			Multiplier:   2.0,
		}, f.logger),
	)
}

func (f *LLMClientFactory) rawClient() (llm.LLMClient, error) {
	provider := f.cfg.Provider
	if provider == "" {
		provider = config.ProviderOllama
	}

	switch provider {
	case config.ProviderOllama:
		host := f.cfg.Host
		if host == "" {
			host = config.DefaultOllamaHost
		}
		return ollama.NewClient(host, f.cfg.Model), nil
	case config.ProviderOpenAI:
		key, err := f.apiKey(provider)
		if err != nil {
			return nil, err
		}
		return openaiofficial.NewClient(key, f.cfg.Model, f.cfg.Host), nil
	case config.ProviderAnthropic:
		key, err := f.apiKey(provider)
		if err != nil {
			return nil, err
		}
		return anthropic.NewClaudeClient(key, f.cfg.Model, f.cfg.Host), nil
	case config.ProviderGoogle:
		key, err := f.apiKey(provider)
		if err != nil {
			return nil, err
		}
		return google.NewGeminiClient(key, f.cfg.Model, f.cfg.Host), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// apiKey reads the key from api_key_env, or from the provider's usual
// variables when that is unset.
func (f *LLMClientFactory) apiKey(provider string) (string, error) {
	names := defaultKeyEnv[provider]
	if f.cfg.APIKeyEnv != "" {
		names = []string{f.cfg.APIKeyEnv}
	}
	for _, name := range names {
		if v := f.getenv(name); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no API key for provider %s: set %v", provider, names)
}
