package mocks

import (
	"context"
	"sync"

	"tinker/pkg/agent/llm"
)

// MockLLMClient implements llm.LLMClient for testing.
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Override to customize behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	// modelName is the model name returned by GetModelName.
	modelName string

	// mu protects call tracking slices
	mu sync.Mutex
}

// NewMockLLMClient creates a new mock LLM client that answers "Mock response".
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{modelName: "mock-model"}
	m.RespondWith("Mock response")
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// Calls returns a copy of the recorded requests.
func (m *MockLLMClient) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.CompleteCalls))
	copy(out, m.CompleteCalls)
	return out
}

// --- Configuration methods ---

// SetModelName sets the model name returned by GetModelName.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// OnComplete sets a custom handler for Complete calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	m.CompleteFunc = fn
	m.mu.Unlock()
}

// FailCompleteWith configures Complete to return the specified error.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// RespondWith configures Complete to return the specified content.
func (m *MockLLMClient) RespondWith(content string) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	})
}

// Reply is one scripted answer: Content, or Err when set.
type Reply struct {
	Content string
	Err     error
}

// RespondWithSequence returns the replies in order, repeating the last one
// for any additional calls.
func (m *MockLLMClient) RespondWithSequence(replies ...Reply) {
	var (
		mu    sync.Mutex
		index int
	)
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		r := replies[len(replies)-1]
		if index < len(replies) {
			r = replies[index]
			index++
		}
		if r.Err != nil {
			return llm.CompletionResponse{}, r.Err
		}
		return llm.CompletionResponse{Content: r.Content, StopReason: "end_turn"}, nil
	})
}

// RespondWithContents is RespondWithSequence for plain text replies.
func (m *MockLLMClient) RespondWithContents(contents ...string) {
	replies := make([]Reply, len(contents))
	for i, c := range contents {
		replies[i] = Reply{Content: c}
	}
	m.RespondWithSequence(replies...)
}
