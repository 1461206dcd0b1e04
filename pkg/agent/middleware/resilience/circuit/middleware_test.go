package circuit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinker/internal/mocks"
	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeTransient, "down"))
	client := llm.Chain(mock, Middleware(Config{FailureThreshold: 2, Timeout: time.Minute}, nil))
	ctx := context.Background()

	for range 2 {
		_, err := client.Complete(ctx, llm.CompletionRequest{})
		require.Error(t, err)
		assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))
	}

	_, err := client.Complete(ctx, llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.IsServiceUnavailable(err))
	assert.Len(t, mock.Calls(), 2)
}

func TestBreakerPassesSuccess(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith("fine")
	client := llm.Chain(mock, Middleware(Config{}, nil))

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Content)
	assert.Equal(t, "mock-model", client.GetModelName())
}
