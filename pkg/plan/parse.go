package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseErrorKind separates malformed output from schema violations and from
// requests that produced no output at all.
type ParseErrorKind string

// Parse error kinds.
const (
	ErrKindSyntax ParseErrorKind = "syntax"
	ErrKindSchema ParseErrorKind = "schema"
	ErrKindLLM    ParseErrorKind = "llm"
)

// ParseError describes why an LLM response could not be used. It is a value
// returned from each attempt, not a panic.
type ParseError struct {
	Kind    ParseErrorKind
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// SyntaxError builds a syntax ParseError.
func SyntaxError(format string, args ...any) *ParseError {
	return &ParseError{Kind: ErrKindSyntax, Message: fmt.Sprintf(format, args...)}
}

// SchemaError builds a schema ParseError.
func SchemaError(format string, args ...any) *ParseError {
	return &ParseError{Kind: ErrKindSchema, Message: fmt.Sprintf(format, args...)}
}

// LLMError wraps a failed completion request as an attempt failure.
func LLMError(err error) *ParseError {
	return &ParseError{Kind: ErrKindLLM, Message: err.Error()}
}

// ErrNoFence is returned by ExtractFenced when no code block is present.
var ErrNoFence = errors.New("no fenced code block")

// ExtractFenced returns the body of the first ```json block, or of the first
// ``` block when no json block exists.
func ExtractFenced(s string) (string, error) {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(s, marker)
		if start < 0 {
			continue
		}
		rest := s[start+len(marker):]
		nl := strings.Index(rest, "\n")
		if nl < 0 {
			continue
		}
		rest = rest[nl+1:]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		return strings.TrimSpace(rest[:end]), nil
	}
	return "", ErrNoFence
}

// DecodeJSON parses content into a JSON object: first directly, then from a
// fenced code block.
func DecodeJSON(content string) (map[string]json.RawMessage, *ParseError) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, SyntaxError("empty response")
	}

	var obj map[string]json.RawMessage
	directErr := json.Unmarshal([]byte(trimmed), &obj)
	if directErr == nil && obj != nil {
		return obj, nil
	}

	body, err := ExtractFenced(trimmed)
	if err != nil {
		if directErr == nil {
			return nil, SyntaxError("response is not a JSON object")
		}
		return nil, SyntaxError("invalid JSON: %v", directErr)
	}
	obj = nil
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, SyntaxError("invalid JSON in code block: %v", err)
	}
	if obj == nil {
		return nil, SyntaxError("code block is not a JSON object")
	}
	return obj, nil
}

// Truncate shortens s to at most n bytes, marking the cut. The cut never
// splits a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "... [truncated]"
}
