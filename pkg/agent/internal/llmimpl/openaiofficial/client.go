// Package openaiofficial implements llm.LLMClient on the official OpenAI Go
// SDK using the Responses API. Any OpenAI-compatible endpoint can be reached
// by setting a base URL.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
)

// Client wraps the official OpenAI client.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a client for model. baseURL may be empty for the public API.
// SDK-level retries are disabled; the retry middleware owns that policy.
func NewClient(apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete implements llm.LLMClient.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	system, rest := llm.SplitSystem(in.Messages)
	input := buildInput(rest)
	if input == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
		Temperature:     openai.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}

	content := resp.OutputText()
	if strings.TrimSpace(content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI returned an empty response")
	}

	stop := "end_turn"
	if resp.IncompleteDetails.Reason == "max_output_tokens" {
		stop = "max_tokens"
	}

	return llm.CompletionResponse{
		Content:    content,
		StopReason: stop,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// buildInput flattens the conversation into a single input string. A lone
// user message is passed through unchanged.
func buildInput(messages []llm.CompletionMessage) string {
	if len(messages) == 1 && messages[0].Role == llm.RoleUser {
		return messages[0].Content
	}
	var sb strings.Builder
	for _, m := range messages {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		switch m.Role {
		case llm.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("openai request aborted: %w", ctxErr)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmerrors.Classify("OpenAI", apiErr.StatusCode, err)
	}
	return llmerrors.Classify("OpenAI", 0, err)
}
