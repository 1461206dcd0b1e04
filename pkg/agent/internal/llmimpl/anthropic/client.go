// Package anthropic implements llm.LLMClient on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
)

// ClaudeClient wraps the Anthropic API client.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a client for model. baseURL may be empty.
func NewClaudeClient(apiKey, model, baseURL string) *ClaudeClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// Complete implements llm.LLMClient.
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	system, rest := llm.SplitSystem(in.Messages)
	messages := ensureAlternation(rest)
	if len(messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}

	var sb strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Claude returned no text content")
	}

	return llm.CompletionResponse{
		Content:    sb.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// ensureAlternation merges consecutive same-role messages, since the API
// rejects two user turns in a row, and drops a leading assistant turn.
func ensureAlternation(messages []llm.CompletionMessage) []anthropic.MessageParam {
	var (
		out      []anthropic.MessageParam
		lastRole llm.CompletionRole
		pending  strings.Builder
	)
	flush := func() {
		if pending.Len() == 0 {
			return
		}
		block := anthropic.NewTextBlock(pending.String())
		if lastRole == llm.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		pending.Reset()
	}

	for _, m := range messages {
		if len(out) == 0 && pending.Len() == 0 && m.Role == llm.RoleAssistant {
			continue
		}
		if m.Role != lastRole {
			flush()
			lastRole = m.Role
		} else if pending.Len() > 0 {
			pending.WriteString("\n\n")
		}
		pending.WriteString(m.Content)
	}
	flush()
	return out
}

func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("anthropic request aborted: %w", ctxErr)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmerrors.Classify("Claude", apiErr.StatusCode, err)
	}
	return llmerrors.Classify("Claude", 0, err)
}
