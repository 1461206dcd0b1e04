// Package plan defines the records exchanged by the planner, the engineer and
// the workflow: plans and their options, resolved tool calls, and the action
// history that accumulates across rounds.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority orders options for execution.
type Priority string

// Priority levels, most urgent first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists the valid levels in execution order.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority normalizes s and reports whether it names a valid level.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// Valid reports whether p is one of the four levels.
func (p Priority) Valid() bool {
	return p.Rank() < len(Priorities)
}

// Rank is the sort key: critical 0 through low 3. Unknown levels sort last.
func (p Priority) Rank() int {
	for i, q := range Priorities {
		if p == q {
			return i
		}
	}
	return len(Priorities)
}

// Solution actions the discovery protocol recognizes.
const (
	ActionSetValue       = "set_value"
	ActionRemoveVariable = "remove_variable"
	ActionManualReview   = "manual_review"
)

// Solution is either free text or a structured {action, path, value} edit.
type Solution struct {
	Text   string
	Action string
	Path   string
	Value  *string // nil encodes JSON null
}

// TextSolution returns a free-text solution.
func TextSolution(text string) Solution {
	return Solution{Text: text}
}

// Structured reports whether the solution is the object form.
func (s Solution) Structured() bool {
	return s.Action != ""
}

// IsZero reports whether the solution carries nothing.
func (s Solution) IsZero() bool {
	return s.Text == "" && s.Action == "" && s.Path == "" && s.Value == nil
}

func (s Solution) String() string {
	if !s.Structured() {
		return s.Text
	}
	if s.Value == nil {
		return fmt.Sprintf("%s %s", s.Action, s.Path)
	}
	return fmt.Sprintf("%s %s = %q", s.Action, s.Path, *s.Value)
}

type solutionObject struct {
	Action string  `json:"action"`
	Path   string  `json:"path,omitempty"`
	Value  *string `json:"value"`
}

// MarshalJSON emits a string for text solutions and an object otherwise.
func (s Solution) MarshalJSON() ([]byte, error) {
	if !s.Structured() {
		return json.Marshal(s.Text)
	}
	return json.Marshal(solutionObject{Action: s.Action, Path: s.Path, Value: s.Value})
}

// UnmarshalJSON accepts a string or an object. Non-string values are kept in
// their JSON text form.
func (s *Solution) UnmarshalJSON(data []byte) error {
	*s = Solution{}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		s.Text = text
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("solution must be a string or an object")
	}
	if raw, ok := obj["action"]; ok {
		if err := json.Unmarshal(raw, &s.Action); err != nil {
			return fmt.Errorf("solution.action must be a string")
		}
	}
	if raw, ok := obj["path"]; ok {
		if err := json.Unmarshal(raw, &s.Path); err != nil {
			return fmt.Errorf("solution.path must be a string")
		}
	}
	if raw, ok := obj["value"]; ok && string(raw) != "null" {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			v = string(raw)
		}
		s.Value = &v
	}
	if s.Action == "" {
		// Objects without an action are kept as their JSON text.
		s.Text = string(data)
		s.Path, s.Value = "", nil
	}
	return nil
}

// Metadata carries optional structured hints about an option.
type Metadata struct {
	VariableName string `json:"variable_name,omitempty"`
	ConfigPath   string `json:"config_path,omitempty"`
	DevicePath   string `json:"device_path,omitempty"`
}

// Option is one candidate configuration change.
type Option struct {
	OptionID    string    `json:"option_id"`
	Description string    `json:"description"`
	Problem     string    `json:"problem"`
	Solution    Solution  `json:"solution"`
	Priority    Priority  `json:"priority"`
	Impact      string    `json:"impact,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Plan is the planner's output for one round. It is not modified after it is
// produced.
type Plan struct {
	ID          string   `json:"id"`
	Objectives  []string `json:"objectives"`
	Options     []Option `json:"options"`
	Fallback    bool     `json:"fallback,omitempty"`
	RawResponse string   `json:"raw_response,omitempty"`
}

// JSON renders the plan as indented JSON.
func (p Plan) JSON() string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ToolCall is a concrete registry invocation resolved from an option.
type ToolCall struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}
