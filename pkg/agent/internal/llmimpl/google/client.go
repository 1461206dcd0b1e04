// Package google implements llm.LLMClient on the Google Gen AI SDK (Gemini).
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
)

// GeminiClient wraps the Gen AI client. The SDK client needs a context to be
// constructed, so it is created on first use.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient creates a client for model. baseURL may be empty.
func NewGeminiClient(apiKey, model, baseURL string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, model: model, baseURL: baseURL}
}

func (g *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if g.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
		}
		g.client, g.initErr = genai.NewClient(ctx, cfg)
	})
	return g.client, g.initErr
}

// Complete implements llm.LLMClient.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.sdk(ctx)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, fmt.Sprintf("failed to create Gemini client: %v", err))
	}

	system, rest := llm.SplitSystem(in.Messages)
	contents := convertMessages(rest)
	if len(contents) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	temperature := in.Temperature
	//nolint:gosec // MaxTokens comes from validated config
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if in.JSONOutput {
		config.ResponseMIMEType = "application/json"
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Gemini returned no text content")
	}

	resp := llm.CompletionResponse{
		Content:    text,
		StopReason: stopReason(result),
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

func convertMessages(messages []llm.CompletionMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

func stopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 {
		return "unknown"
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	case genai.FinishReasonStop, genai.FinishReasonUnspecified:
		return "end_turn"
	default:
		return strings.ToLower(string(result.Candidates[0].FinishReason))
	}
}

func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("gemini request aborted: %w", ctxErr)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.Classify("Gemini", apiErr.Code, err)
	}
	return llmerrors.Classify("Gemini", 0, err)
}
