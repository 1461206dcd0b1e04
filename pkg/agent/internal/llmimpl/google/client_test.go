package google

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"tinker/pkg/agent/llm"
)

func TestConvertMessagesMapsRoles(t *testing.T) {
	contents := convertMessages([]llm.CompletionMessage{
		llm.NewUserMessage("hi"),
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, "unknown", stopReason(&genai.GenerateContentResponse{}))
	assert.Equal(t, "max_tokens", stopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
	}))
	assert.Equal(t, "end_turn", stopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
	}))
}

func TestClassifyErrorUsesAPIStatus(t *testing.T) {
	err := classifyError(context.Background(), genai.APIError{Code: 429, Message: "quota"})
	assert.Contains(t, err.Error(), "Gemini")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, classifyError(ctx, genai.APIError{Code: 500}), context.Canceled)
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", NewGeminiClient("k", "gemini-2.5-flash", "").GetModelName())
}
