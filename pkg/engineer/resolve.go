package engineer

import (
	"encoding/json"
	"strings"

	"tinker/pkg/plan"
)

// Resolver actions.
const (
	ActionExecute = "execute"
	ActionSkip    = "skip"
)

// Resolution is the resolver's decision for one option.
type Resolution struct {
	Reasoning  string          `json:"reasoning,omitempty"`
	Action     string          `json:"action"`
	ToolCalls  []plan.ToolCall `json:"tool_calls,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

// Skipped reports whether the resolver declined the option.
func (r Resolution) Skipped() bool {
	return r.Action == ActionSkip
}

// ParseResolution decodes and validates a resolver response. A missing
// action means execute.
func ParseResolution(content string) (Resolution, *plan.ParseError) {
	obj, perr := plan.DecodeJSON(content)
	if perr != nil {
		return Resolution{}, perr
	}

	var res Resolution
	res.Action = ActionExecute
	if raw, ok := obj["action"]; ok {
		if err := json.Unmarshal(raw, &res.Action); err != nil {
			return Resolution{}, plan.SchemaError("Invalid action %s. Must be 'execute' or 'skip'", string(raw))
		}
	}
	if raw, ok := obj["reasoning"]; ok {
		_ = json.Unmarshal(raw, &res.Reasoning)
	}
	if raw, ok := obj["skip_reason"]; ok {
		_ = json.Unmarshal(raw, &res.SkipReason)
	}

	switch res.Action {
	case ActionSkip:
		if strings.TrimSpace(res.SkipReason) == "" {
			return Resolution{}, plan.SchemaError("Action is 'skip' but no skip_reason provided")
		}
		return res, nil
	case ActionExecute:
	default:
		return Resolution{}, plan.SchemaError("Invalid action '%s'. Must be 'execute' or 'skip'", res.Action)
	}

	var calls []json.RawMessage
	if raw, ok := obj["tool_calls"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &calls); err != nil {
			return Resolution{}, plan.SchemaError("'tool_calls' must be a list")
		}
	}
	if len(calls) == 0 {
		return Resolution{}, plan.SchemaError("Action is 'execute' but no tool_calls provided")
	}
	for i, raw := range calls {
		call, perr := parseToolCall(i, raw)
		if perr != nil {
			return Resolution{}, perr
		}
		res.ToolCalls = append(res.ToolCalls, call)
	}
	return res, nil
}

func parseToolCall(i int, raw json.RawMessage) (plan.ToolCall, *plan.ParseError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return plan.ToolCall{}, plan.SchemaError("Tool call %d is not an object", i)
	}
	var missing []string
	for _, key := range []string{"tool", "params"} {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return plan.ToolCall{}, plan.SchemaError("Tool call %d missing fields: %s", i, strings.Join(missing, ", "))
	}

	var call plan.ToolCall
	if err := json.Unmarshal(fields["tool"], &call.Tool); err != nil || call.Tool == "" {
		return plan.ToolCall{}, plan.SchemaError("Tool call %d has an invalid tool name", i)
	}
	if string(fields["params"]) != "null" {
		if err := json.Unmarshal(fields["params"], &call.Params); err != nil {
			return plan.ToolCall{}, plan.SchemaError("Tool call %d params must be an object", i)
		}
	}
	if call.Params == nil {
		call.Params = map[string]any{}
	}
	return call, nil
}
