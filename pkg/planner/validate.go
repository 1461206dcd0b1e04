package planner

import (
	"encoding/json"
	"strconv"
	"strings"

	"tinker/pkg/plan"
	"tinker/pkg/utils"
)

var requiredOptionFields = []string{"option_id", "description", "problem", "solution", "priority"}

// Parse turns a raw model response into a validated plan. When discoveryVar
// is set the plan must also be a single discovery resolution for it.
func Parse(content, discoveryVar string) (plan.Plan, *plan.ParseError) {
	obj, perr := plan.DecodeJSON(content)
	if perr != nil {
		return plan.Plan{}, perr
	}

	var missing []string
	for _, field := range []string{"objectives", "options"} {
		if _, ok := obj[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return plan.Plan{}, plan.SchemaError("Missing required fields: %s", strings.Join(missing, ", "))
	}

	var p plan.Plan
	if raw, ok := obj["id"]; ok {
		p.ID, _ = scalarString(raw)
	}
	if p.ID == "" {
		p.ID = utils.NewPlanID()
	}

	if err := json.Unmarshal(obj["objectives"], &p.Objectives); err != nil {
		return plan.Plan{}, plan.SchemaError("'objectives' must be a list of strings")
	}

	var rawOptions []json.RawMessage
	if err := json.Unmarshal(obj["options"], &rawOptions); err != nil || rawOptions == nil {
		return plan.Plan{}, plan.SchemaError("'options' must be a list")
	}
	for i, raw := range rawOptions {
		opt, perr := parseOption(i, raw)
		if perr != nil {
			return plan.Plan{}, perr
		}
		p.Options = append(p.Options, opt)
	}

	if discoveryVar != "" {
		if perr := validateDiscovery(p, discoveryVar); perr != nil {
			return plan.Plan{}, perr
		}
	}
	return p, nil
}

func parseOption(i int, raw json.RawMessage) (plan.Option, *plan.ParseError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return plan.Option{}, plan.SchemaError("Option %d must be an object", i)
	}

	var missing []string
	for _, f := range requiredOptionFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return plan.Option{}, plan.SchemaError("Option %d missing required fields: %s", i, strings.Join(missing, ", "))
	}

	var opt plan.Option
	opt.OptionID, _ = scalarString(fields["option_id"])
	opt.Description, _ = scalarString(fields["description"])
	opt.Problem, _ = scalarString(fields["problem"])
	if raw, ok := fields["impact"]; ok {
		opt.Impact, _ = scalarString(raw)
	}

	rawPriority, _ := scalarString(fields["priority"])
	priority, ok := plan.ParsePriority(rawPriority)
	if !ok {
		return plan.Option{}, plan.SchemaError("Option %d has invalid priority '%s'. Must be one of: critical, high, medium, low", i, rawPriority)
	}
	opt.Priority = priority

	if err := json.Unmarshal(fields["solution"], &opt.Solution); err != nil {
		return plan.Option{}, plan.SchemaError("Option %d: %v", i, err)
	}

	if raw, ok := fields["metadata"]; ok && string(raw) != "null" {
		var md plan.Metadata
		// Malformed hints are dropped; metadata is advisory.
		if err := json.Unmarshal(raw, &md); err == nil && md != (plan.Metadata{}) {
			opt.Metadata = &md
		}
	}
	return opt, nil
}

func validateDiscovery(p plan.Plan, variable string) *plan.ParseError {
	if len(p.Options) != 1 {
		return plan.SchemaError("Discovery mode requires exactly one option, got %d", len(p.Options))
	}
	sol := p.Options[0].Solution
	want := "env." + variable
	switch {
	case sol.Action != plan.ActionSetValue && sol.Action != plan.ActionRemoveVariable:
		return plan.SchemaError("Discovery option solution must be an object with action set_value or remove_variable")
	case sol.Path != want:
		return plan.SchemaError("Discovery option solution path must be '%s', got '%s'", want, sol.Path)
	case sol.Action == plan.ActionSetValue && (sol.Value == nil || *sol.Value == ""):
		return plan.SchemaError("Discovery option set_value requires a value")
	}
	return nil
}

// scalarString reads a JSON string, number or bool as text.
func scalarString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}
