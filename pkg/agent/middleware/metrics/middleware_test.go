package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinker/internal/mocks"
	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := NewPrometheusRecorder(reg)

	mock := mocks.NewMockLLMClient()
	mock.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: "{}", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 3}}, nil
	})
	client := llm.Chain(mock, Middleware(recorder, nil, nil))

	ctx := llm.WithCaller(context.Background(), "planner")
	_, err := client.Complete(ctx, llm.NewCompletionRequest("s", "u", 100, 0.7))
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(recorder.requestsTotal.WithLabelValues("mock-model", "planner", "success", "")), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(recorder.tokensTotal.WithLabelValues("mock-model", "planner", "prompt")), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(recorder.tokensTotal.WithLabelValues("mock-model", "planner", "completion")), 1e-9)

	mock.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow"))
	_, err = client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(recorder.requestsTotal.WithLabelValues("mock-model", "unknown", "error", "rate_limit")), 1e-9)
}

func TestDefaultUsageExtractorCountsWhenProviderSilent(t *testing.T) {
	req := llm.NewCompletionRequest("system prompt", "user prompt", 10, 0)
	p, c := DefaultUsageExtractor(req, llm.CompletionResponse{Content: "hello world"})
	assert.Positive(t, p)
	assert.Positive(t, c)
}

func TestNopRecorder(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.FailCompleteWith(errors.New("boom"))
	client := llm.Chain(mock, Middleware(nil, nil, nil))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	assert.EqualError(t, err, "boom")
}
