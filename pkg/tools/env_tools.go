package tools

import "context"

// reservedEnv rejects edits to the engine-managed variable.
func reservedEnv(name, verb string) (Result, bool) {
	if name == ReservedEnvVar {
		return failure("Cannot %s %s environment variable", verb, ReservedEnvVar), true
	}
	return Result{}, false
}

// addPlaceholderTool writes the discovery sentinel into env.<name>.
type addPlaceholderTool struct{ r *Registry }

func (t *addPlaceholderTool) Name() string { return ToolAddPlaceholder }

func (t *addPlaceholderTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAddPlaceholder,
		Description: "Set an environment variable to the discovery sentinel so the next run reports the values the guest compares it against",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"name":   {Type: "string", Description: "Environment variable name"},
				"reason": reasonProperty(),
			},
			Required: []string{"name", "reason"},
		},
	}
}

func (t *addPlaceholderTool) PromptDocumentation() string {
	return `- **add_placeholder_variable** - Add env variable with placeholder value ` + Sentinel + ` for value discovery
  - Parameters:
    - name (string, REQUIRED): environment variable name
    - reason (string, REQUIRED): why the value must be discovered
  - Only ONE placeholder variable may be added per rehosting cycle`
}

func (t *addPlaceholderTool) Exec(_ context.Context, args map[string]any) Result {
	name, _ := requireString(args, "name")
	if res, reserved := reservedEnv(name, "modify"); reserved {
		return res
	}
	if active, ok := t.r.ActivePlaceholder(); ok {
		return failure("Placeholder variable %s is already active. Only ONE placeholder variable allowed per rehosting cycle", active)
	}

	old, existed := t.r.doc.GetAt(sectionEnv, name)
	if err := t.r.doc.SetAt([]string{sectionEnv, name}, Sentinel); err != nil {
		return failure("Failed to add placeholder %s: %v", name, err)
	}
	if err := t.r.save(); err != nil {
		return saveFailure(err)
	}
	t.r.placeholder = name

	changes := map[string]any{"path": sectionEnv + "." + name, "new": Sentinel}
	if existed {
		changes["old"] = old
	}
	return success(changes, "Added placeholder variable %s=%s", name, Sentinel)
}

// setDiscoveredValueTool replaces a placeholder with the value found in env_cmp.txt.
type setDiscoveredValueTool struct{ r *Registry }

func (t *setDiscoveredValueTool) Name() string { return ToolSetDiscoveredValue }

func (t *setDiscoveredValueTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSetDiscoveredValue,
		Description: "Set an environment variable to a concrete value discovered by a previous run",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"name":   {Type: "string", Description: "Environment variable name"},
				"value":  {Type: "string", Description: "Discovered value"},
				"reason": reasonProperty(),
			},
			Required: []string{"name", "value", "reason"},
		},
	}
}

func (t *setDiscoveredValueTool) PromptDocumentation() string {
	return `- **set_discovered_value** - Set env variable to a discovered value (replaces the placeholder)
  - Parameters:
    - name (string, REQUIRED): environment variable name
    - value (string, REQUIRED): value taken from env_cmp.txt
    - reason (string, REQUIRED): why this value was chosen`
}

func (t *setDiscoveredValueTool) Exec(_ context.Context, args map[string]any) Result {
	name, _ := requireString(args, "name")
	value, _ := requireString(args, "value")
	if res, reserved := reservedEnv(name, "modify"); reserved {
		return res
	}

	old, existed := t.r.doc.GetAt(sectionEnv, name)
	if err := t.r.doc.SetAt([]string{sectionEnv, name}, value); err != nil {
		return failure("Failed to set %s: %v", name, err)
	}
	if err := t.r.save(); err != nil {
		return saveFailure(err)
	}

	changes := map[string]any{"path": sectionEnv + "." + name, "new": value}
	if existed {
		changes["old"] = old
	}
	return success(changes, "Set environment variable %s=%s", name, value)
}

// removeVariableTool deletes env.<name>.
type removeVariableTool struct{ r *Registry }

func (t *removeVariableTool) Name() string { return ToolRemoveVariable }

func (t *removeVariableTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolRemoveVariable,
		Description: "Remove an environment variable from the configuration",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"name":   {Type: "string", Description: "Environment variable name"},
				"reason": reasonProperty(),
			},
			Required: []string{"name", "reason"},
		},
	}
}

func (t *removeVariableTool) PromptDocumentation() string {
	return `- **remove_variable** - Remove an environment variable
  - Parameters:
    - name (string, REQUIRED): environment variable name
    - reason (string, REQUIRED): why it should be removed`
}

func (t *removeVariableTool) Exec(_ context.Context, args map[string]any) Result {
	name, _ := requireString(args, "name")
	if res, reserved := reservedEnv(name, "remove"); reserved {
		return res
	}

	old, existed := t.r.doc.GetAt(sectionEnv, name)
	if !existed || !t.r.doc.RemoveAt(sectionEnv, name) {
		return failure("Environment variable %s not found", name)
	}
	if err := t.r.save(); err != nil {
		return saveFailure(err)
	}
	return success(map[string]any{"path": sectionEnv + "." + name, "old": old}, "Removed environment variable %s", name)
}
