// Package llm defines the chat-completion client used by the planner and the
// engineer, independent of any provider SDK.
package llm

import "context"

// CompletionRole is the speaker of a message.
type CompletionRole string

// Message roles.
const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

// Sampling temperatures shared by the prompt builders.
const (
	TemperatureDefault       float32 = 0.3
	TemperatureDeterministic float32 = 0.2
)

// CompletionMessage is one chat message.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// CompletionRequest is a single blocking chat round trip.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
	// JSONOutput asks the provider for a JSON-formatted response where the
	// provider supports it.
	JSONOutput bool
}

// Usage reports token counts when the provider returns them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse carries the raw text of the reply.
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      Usage
}

// LLMClient sends completion requests to a model.
type LLMClient interface {
	// Complete sends the request and blocks until the full reply arrives.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// GetModelName returns the model identifier used for requests.
	GetModelName() string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewCompletionRequest builds a JSON-output request from a system and a user prompt.
func NewCompletionRequest(system, user string, maxTokens int, temperature float32) CompletionRequest {
	return CompletionRequest{
		Messages:    []CompletionMessage{NewSystemMessage(system), NewUserMessage(user)},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		JSONOutput:  true,
	}
}

// SplitSystem separates system messages, joined by blank lines, from the
// conversation. Providers with a dedicated system field use it.
func SplitSystem(messages []CompletionMessage) (string, []CompletionMessage) {
	var (
		system string
		rest   []CompletionMessage
	)
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

type callerKey struct{}

// WithCaller tags ctx with the component issuing requests ("planner",
// "engineer") for logging and metrics.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller tag, or "unknown".
func CallerFrom(ctx context.Context) string {
	if c, ok := ctx.Value(callerKey{}).(string); ok && c != "" {
		return c
	}
	return "unknown"
}
