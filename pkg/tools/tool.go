// Package tools implements the mutation tool registry: the fixed set of
// named operations the engineer may apply to a round's configuration
// document, plus two diagnostic escape hatches that act outside it.
package tools

import (
	"context"
	"fmt"
	"strings"

	"tinker/pkg/utils"
)

// Status is the outcome of a single tool call.
type Status string

// Tool call outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result is returned by every tool. Failures are values, never Go errors.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Changes map[string]any `json:"changes,omitempty"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

func success(changes map[string]any, format string, args ...any) Result {
	return Result{Status: StatusSuccess, Message: fmt.Sprintf(format, args...), Changes: changes}
}

func failure(format string, args ...any) Result {
	return Result{Status: StatusFailed, Message: fmt.Sprintf(format, args...)}
}

// Property describes one tool parameter.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is the JSON schema of a tool's parameters.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the machine-readable description of a tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Tool is one registry operation.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	PromptDocumentation() string
	Exec(ctx context.Context, args map[string]any) Result
}

// requireString returns a non-empty string argument.
func requireString(args map[string]any, key string) (string, error) {
	v, ok := utils.StringField(args, key)
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("parameter %s cannot be empty", key)
	}
	return v, nil
}

// optionalString returns a string argument or "".
func optionalString(args map[string]any, key string) string {
	v, _ := utils.StringField(args, key)
	return strings.TrimSpace(v)
}

// checkRequired validates the schema's required parameters, reporting the
// first one that is missing.
func checkRequired(def ToolDefinition, args map[string]any) error {
	for _, key := range def.InputSchema.Required {
		if _, err := requireString(args, key); err != nil {
			return err
		}
	}
	return nil
}

func reasonProperty() Property {
	return Property{Type: "string", Description: "Why this change is needed"}
}
