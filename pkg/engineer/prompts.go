package engineer

import (
	"encoding/json"
	"fmt"
	"strings"

	"tinker/pkg/plan"
)

const resolverSchema = `{
  "reasoning": "Brief explanation",
  "action": "execute" | "skip",
  "tool_calls": [
    {
      "tool": "tool_name",
      "params": {"param1": "value1", "reason": "why needed"}
    }
  ],
  "skip_reason": "Why skipped (if action='skip')"
}`

const systemPrompt = `You are an Engineer implementing firmware rehosting config changes.

**Your Task:** Convert high-level objectives into specific tool calls.

**Available Tools:**
{tools}

**Option Context:**
The planner provides options with optional "metadata" field containing structured data:
- variable_name: Env var name (e.g., "sxid")
- config_path: Path in config (e.g., "env.sxid")
- device_path: Device file path (e.g., "/dev/mtd1")

**Use metadata when available** - it provides precise parameters and avoids ambiguity.

**Output JSON:**
` + resolverSchema + `

**Key Rules:**
- ⚠️ add_placeholder_variable: ONLY ONCE per execution cycle
- For env vars with known values: use set_discovered_value
- For missing devices: use add_device_model
- ONE action per option
- Output ONLY JSON, no markdown`

const discoverySystemPrompt = `🔍 DISCOVERY MODE: Apply or remove discovered environment variable.

## Context
The planner analyzed env_cmp.txt results and decided to either apply a discovered value or remove a failed discovery placeholder.

**Your Task:** Implement the planner's decision using the appropriate tool.

**Available Tools:**
{tools}

**Option metadata (use this directly):**
- variable_name: "{variable_name}"
- config_path: "{config_path}"

**Planner's solution structure:**
- action: "set_value" OR "remove_variable"
- path: "env.<variable_name>"
- value: discovered value (if set_value) OR null (if remove)

**Implementation:**
- If solution.action="set_value": Use set_discovered_value(name=metadata.variable_name, value=solution.value, reason="Applied discovered value from env_cmp.txt")
- If solution.action="remove_variable": Use remove_variable(name=metadata.variable_name, reason="Discovery failed, no candidates found")

⚠️ Use metadata.variable_name directly - don't parse from path string.

**Output JSON:**
{
  "reasoning": "Brief explanation of what you're implementing",
  "action": "execute",
  "tool_calls": [{
    "tool": "set_discovered_value" | "remove_variable",
    "params": {"name": "<variable_name>", "value": "<value_or_omit>", "reason": "<explanation>"}
  }]
}

Output ONLY JSON, no markdown.`

// systemPromptFor picks the resolver system prompt. In discovery mode the
// variable comes from the option metadata, falling back to the variable the
// run is resolving.
func systemPromptFor(toolDocs string, opt plan.Option, discoveryVar string) string {
	if discoveryVar == "" {
		return strings.ReplaceAll(systemPrompt, "{tools}", toolDocs)
	}
	name := discoveryVar
	configPath := ""
	if md := opt.Metadata; md != nil {
		if md.VariableName != "" {
			name = md.VariableName
		}
		configPath = md.ConfigPath
	}
	if configPath == "" {
		configPath = "env." + name
	}
	return strings.NewReplacer(
		"{tools}", toolDocs,
		"{variable_name}", name,
		"{config_path}", configPath,
	).Replace(discoverySystemPrompt)
}

// userPrompt describes one option to the resolver.
func userPrompt(opt plan.Option, projectPath, guidance string) string {
	optJSON, err := json.MarshalIndent(opt, "", "  ")
	if err != nil {
		optJSON = []byte("{}")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\n\n", opt.Description)
	fmt.Fprintf(&sb, "Context from Planner:\n%s\n\n", optJSON)
	fmt.Fprintf(&sb, "Project Path: %s\n", projectPath)
	sb.WriteString("Config File: config.yaml\n")
	if guidance != "" {
		sb.WriteString("\n" + guidance + "\n")
	}
	sb.WriteString(`
Task: Determine the specific tool calls needed to implement this objective.
Consider what files need to be modified, what values to set, and why.
Use the Knowledge Base examples as reference for similar cases.

Generate the implementation plan as JSON.`)
	return sb.String()
}

func retryUserPrompt(user, lastErr string) string {
	return user + "\n\nPREVIOUS ATTEMPT FAILED: " + lastErr + "\nPlease output VALID JSON matching the schema exactly."
}
