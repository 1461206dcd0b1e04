package metrics

import (
	"context"
	"strings"
	"time"

	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
	"tinker/pkg/logx"
	"tinker/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor uses the provider's reported usage when present and
// counts tokens with tiktoken otherwise.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	var promptText strings.Builder
	for i := range req.Messages {
		promptText.WriteString(req.Messages[i].Content)
		promptText.WriteString("\n")
	}
	return utils.CountTokensSimple(promptText.String()), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage and failures by error type.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(next, func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			start := time.Now()
			model := next.GetModelName()
			caller := llm.CallerFrom(ctx)

			resp, err := next.Complete(ctx, req)
			duration := time.Since(start)

			var promptTokens, completionTokens int
			errorType := ""
			if err == nil {
				promptTokens, completionTokens = usageExtractor(req, resp)
			} else {
				errorType = llmerrors.TypeOf(err).String()
			}

			recorder.ObserveRequest(model, caller, promptTokens, completionTokens, err == nil, errorType, duration)

			if logger != nil {
				status := statusSuccess
				if err != nil {
					status = statusError
				}
				logger.Debug("🎯 LLM Request: model=%s caller=%s tokens=%d+%d=%d status=%s duration=%dms",
					model, caller, promptTokens, completionTokens, promptTokens+completionTokens, status, duration.Milliseconds())
			}

			return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
		})
	}
}
