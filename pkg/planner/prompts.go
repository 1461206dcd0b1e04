package planner

import "strings"

// Goal is the default planner goal.
const Goal = "Analyze Penguin rehosting results and generate configuration update plan that improves firmware execution"

// Schema is the JSON shape quoted to the model.
const Schema = `{
  "id": "fw_plan_<unique_id>",
  "objectives": ["<objective1>", "<objective2>"],
  "options": [
    {
      "option_id": "1",
      "description": "<brief_summary>",
      "problem": "<specific_problem>",
      "solution": "<solution_approach>",
      "priority": "critical|high|medium|low",
      "impact": "<expected_impact>",
      "metadata": {
        "variable_name": "<var_name_if_env_var_issue>",
        "config_path": "<path_if_applicable>",
        "device_path": "<device_path_if_pseudofile>"
      }
    }
  ]
}`

const systemPrompt = `You are a firmware rehosting planner analyzing Penguin configuration issues.

## Your Task
Analyze the provided goal, context, and constraints, then create a comprehensive plan to achieve the goal. Output the plan in JSON format following the schema provided at the end.

## Key Configuration Targets

**env** (environment variables): Main focus if env_missing.yaml or env_cmp.txt present
**pseudofiles** (device files): Add if pseudofiles_failures.yaml shows missing devices
**core/patches**: Rarely modified (auto-handled)

## Common Patterns

1. **Missing env vars WITHOUT known values**: Add ONE placeholder for discovery (⚠️ only ONE per cycle)
2. **Missing devices**: Add pseudofile entries for /dev/*, /proc/*, /sys/* paths
3. **Crashes/panics**: Check env vars and device dependencies first

## Discovery Constraint
⚠️ CRITICAL: Only ONE environment variable can use placeholder (DYNVALDYNVALDYNVAL) per rehosting cycle. If multiple unknowns exist, prioritize the most critical ONE.

## Important Notes
- **metadata field**: Include structured data for Engineer (e.g., variable_name="sxid", config_path="env.sxid" for env vars, or device_path="/dev/mtd1" for pseudofiles). Omit fields not applicable. IMPORTANT: Don't add metadata if not relevant to the option!
- Priority levels: critical (crashes) > high (missing critical data) > medium (nice-to-have) > low (optimization)
- Output ONLY valid JSON, no markdown.

## Expected JSON Output Format

` + Schema

const retrySystemPrompt = `Your previous response was invalid. Output ONLY valid JSON matching this schema:
` + Schema + `

Required: id, objectives (array), options (array with option_id, description, problem, solution, priority, impact)
Priority must be one of: critical, high, medium, low.
No markdown, no explanations, just the JSON object.`

const discoveryPrompt = `🔍 DISCOVERY MODE: Resolve environment variable with discovered value

## What is Discovery Mode?
In the previous iteration, you added a placeholder environment variable with value "DYNVALDYNVALDYNVAL" to discover its actual value at runtime. The firmware has now run with this placeholder, and Penguin captured candidate values in env_cmp.txt by monitoring string comparisons.

## Your Task
Analyze env_cmp.txt results for variable "{variable_name}" and create a plan to either:
1. **Apply the discovered value** (if env_cmp.txt has candidates)
2. **Remove the placeholder** (if env_cmp.txt is empty - discovery failed)

⚠️ **CRITICAL**: Generate EXACTLY ONE option in your plan. No multiple options in discovery mode.

## Output Format
Generate a plan in JSON format following the standard schema with EXACTLY ONE option.

**If env_cmp.txt has candidate values:**
{
  "id": "discovery_{variable_name}",
  "objectives": ["Apply discovered value for {variable_name}"],
  "options": [{
    "option_id": "1",
    "description": "Set {variable_name} with discovered value",
    "problem": "Placeholder needs replacement with actual value",
    "solution": {"action": "set_value", "path": "env.{variable_name}", "value": "<FIRST_CANDIDATE_FROM_ENV_CMP>"},
    "priority": "critical",
    "impact": "Applies discovered value to environment variable",
    "metadata": {"variable_name": "{variable_name}", "config_path": "env.{variable_name}"}
  }]
}

**If env_cmp.txt is empty or has no relevant values:**
{
  "id": "discovery_{variable_name}",
  "objectives": ["Remove failed discovery for {variable_name}"],
  "options": [{
    "option_id": "1",
    "description": "Remove {variable_name} - discovery unsuccessful",
    "problem": "No candidate values discovered",
    "solution": {"action": "remove_variable", "path": "env.{variable_name}", "value": null},
    "priority": "high",
    "impact": "Removes placeholder that failed discovery",
    "metadata": {"variable_name": "{variable_name}", "config_path": "env.{variable_name}"}
  }]
}

Output ONLY valid JSON matching the schema.`

const discoveryRetryNote = `

DISCOVERY MODE for "{variable_name}": the plan must contain EXACTLY ONE option whose solution is {"action": "set_value", "path": "env.{variable_name}", "value": "<candidate>"} or {"action": "remove_variable", "path": "env.{variable_name}", "value": null}.`

func withVariable(tmpl, variable string) string {
	return strings.ReplaceAll(tmpl, "{variable_name}", variable)
}

// systemPromptFor picks the system prompt for an attempt.
func systemPromptFor(retry bool, discoveryVar string) string {
	switch {
	case retry && discoveryVar != "":
		return retrySystemPrompt + withVariable(discoveryRetryNote, discoveryVar)
	case retry:
		return retrySystemPrompt
	case discoveryVar != "":
		return withVariable(discoveryPrompt, discoveryVar)
	default:
		return systemPrompt
	}
}

// retryUserPrompt prefixes the user prompt with the previous error.
func retryUserPrompt(userPrompt, previousErr string) string {
	return "Previous attempt failed with error: " + previousErr + "\n\n" + userPrompt +
		"\n\nREMEMBER: Output ONLY valid JSON matching the exact schema. No markdown, no explanations."
}
