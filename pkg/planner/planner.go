// Package planner generates the per-round configuration plan. It builds the
// prompt from round context, asks the model for JSON, validates the answer
// and retries with a corrective prompt. Generate always returns a usable plan.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tinker/pkg/agent/llm"
	"tinker/pkg/config"
	"tinker/pkg/knowledge"
	"tinker/pkg/logx"
	"tinker/pkg/plan"
	"tinker/pkg/utils"
)

// Context history limits.
const (
	maxPreviousActions   = 10
	maxPreviousSummaries = 3
	rawResponseLimit     = 500
)

// Constraints are the resource limits quoted in the prompt.
type Constraints struct {
	MaxIterations           int `json:"max_iterations"`
	MaxOptionsPerRound      int `json:"max_options_per_round,omitempty"`
	MaxPlaceholderVariables int `json:"max_placeholder_variables"`
	RoundsRemaining         int `json:"rounds_remaining"`
}

// Input is everything the planner sees for one round.
type Input struct {
	Goal              string
	ProjectPath       string // config.yaml is read from here in normal mode
	Sources           plan.Sources
	PreviousActions   []plan.ActionRecord
	PreviousSummaries []string
	Facts             knowledge.Facts
	Constraints       Constraints
	// DiscoveryVariable is set while the run is resolving a placeholder.
	DiscoveryVariable string
}

// Attempt is the outcome of one model round trip.
type Attempt struct {
	Plan plan.Plan
	Raw  string
	Err  *plan.ParseError
}

// OK reports whether the attempt produced a valid plan.
func (a Attempt) OK() bool {
	return a.Err == nil
}

// Planner is the structured plan generator.
type Planner struct {
	client llm.LLMClient
	cfg    config.Planner
	kb     *knowledge.Base
	logger *logx.Logger
}

// New creates a planner. kb may be nil to disable knowledge base insights.
func New(client llm.LLMClient, cfg config.Planner, kb *knowledge.Base, logger *logx.Logger) *Planner {
	if logger == nil {
		logger = logx.Nop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = config.DefaultPlannerRetries
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = config.DefaultPlannerMaxTokens
	}
	return &Planner{client: client, cfg: cfg, kb: kb, logger: logger}
}

// Generate produces the round's plan. It never fails: after MaxRetries
// invalid attempts it returns the fallback plan.
func (p *Planner) Generate(ctx context.Context, in Input) plan.Plan {
	if in.Goal == "" {
		in.Goal = Goal
	}
	ctx = llm.WithCaller(ctx, "planner")

	userPrompt := BuildPrompt(in.Goal, p.BuildContext(in), in.Constraints)

	var last Attempt
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		retry := attempt > 1
		system := systemPromptFor(retry, in.DiscoveryVariable)
		user := userPrompt
		temperature := p.cfg.Temperature
		if retry {
			user = retryUserPrompt(userPrompt, last.Err.Message)
			temperature = p.cfg.RetryTemperature
		}

		last = p.attempt(ctx, system, user, temperature, in.DiscoveryVariable)
		if last.OK() {
			if retry {
				p.logger.Info("Successfully generated plan on retry attempt %d", attempt)
			}
			p.logger.DebugBlock("GENERATED PLAN (PARSED)", last.Plan.JSON())
			return last.Plan
		}
		p.logger.Warn("Attempt %d/%d failed: %s", attempt, p.cfg.MaxRetries, last.Err.Message)
	}

	p.logger.Warn("All %d attempts failed. Creating fallback plan.", p.cfg.MaxRetries)
	return Fallback(p.cfg.MaxRetries, last.Err, last.Raw)
}

// attempt performs one request and validates its output.
func (p *Planner) attempt(ctx context.Context, system, user string, temperature float32, discoveryVar string) Attempt {
	p.logger.DebugBlock(fmt.Sprintf("CALLING LLM (model %s)", p.client.GetModelName()),
		"--- SYSTEM PROMPT ---\n"+system+"\n\n--- USER PROMPT ---\n"+user)

	resp, err := p.client.Complete(ctx, llm.NewCompletionRequest(system, user, p.cfg.MaxTokens, temperature))
	if err != nil {
		return Attempt{Err: plan.LLMError(err)}
	}
	p.logger.DebugBlock("RAW RESPONSE", resp.Content)

	parsed, perr := Parse(resp.Content, discoveryVar)
	return Attempt{Plan: parsed, Raw: resp.Content, Err: perr}
}

// Fallback is the plan returned when every attempt failed. It escalates to a
// human with critical priority.
func Fallback(attempts int, lastErr *plan.ParseError, raw string) plan.Plan {
	msg := "Unknown error"
	if lastErr != nil {
		msg = lastErr.Message
	}
	if raw == "" {
		raw = "No response"
	}
	return plan.Plan{
		ID:         utils.NewPlanID(),
		Objectives: []string{"⚠️ Parse error - manual intervention needed"},
		Options: []plan.Option{{
			OptionID:    "1",
			Description: fmt.Sprintf("Failed to parse LLM response after %d attempts", attempts),
			Problem:     "LLM response parsing failed: " + msg,
			Solution:    plan.Solution{Action: plan.ActionManualReview, Text: "Manual review and intervention required"},
			Priority:    plan.PriorityCritical,
			Impact:      "requires_manual_intervention",
		}},
		Fallback:    true,
		RawResponse: plan.Truncate(raw, rawResponseLimit),
	}
}

// BuildContext renders the context section. In discovery mode only the
// candidate values and the console log are included.
func (p *Planner) BuildContext(in Input) string {
	if in.DiscoveryVariable != "" {
		return discoveryContext(in)
	}

	var parts []string

	if in.ProjectPath != "" {
		configPath := filepath.Join(in.ProjectPath, "config.yaml")
		if data, err := os.ReadFile(configPath); err == nil {
			parts = append(parts,
				"## Previous Penguin Configuration (config.yaml):",
				"This is the configuration used in the previous rehosting attempt.",
				"```yaml", strings.TrimRight(string(data), "\n"), "```", "")
		} else if !os.IsNotExist(err) {
			parts = append(parts, fmt.Sprintf("## Note: Could not read config.yaml: %v", err))
		}
	}

	if len(in.Sources) > 0 {
		parts = append(parts, "## Retrieved Context:")
		for _, src := range in.Sources {
			parts = append(parts, fmt.Sprintf("\n### %s:", src.Name), src.Content)
		}
	}

	if len(in.PreviousActions) > 0 {
		parts = append(parts, "\n## Previous Execution History:",
			fmt.Sprintf("Total previous actions: %d", len(in.PreviousActions)))
		actions := in.PreviousActions
		if len(actions) > maxPreviousActions {
			actions = actions[len(actions)-maxPreviousActions:]
		}
		for i, a := range actions {
			parts = append(parts,
				fmt.Sprintf("\nPrevious Action %d:", i+1),
				"  Step ID: "+a.StepID,
				"  Tool: "+a.Tool,
				"  Status: "+string(a.Status),
				"  Summary: "+a.Summary)
			if len(a.Input) > 0 {
				if data, err := json.Marshal(a.Input); err == nil {
					parts = append(parts, "  Parameters: "+string(data))
				}
			}
		}
	}

	if len(in.PreviousSummaries) > 0 {
		parts = append(parts, "\n## Previous Engineer Summary:")
		summaries := in.PreviousSummaries
		if len(summaries) > maxPreviousSummaries {
			summaries = summaries[len(summaries)-maxPreviousSummaries:]
		}
		for i, s := range summaries {
			parts = append(parts, fmt.Sprintf("\nSummary %d:", i+1), "  "+s)
		}
	}

	if insights := knowledge.FormatPlannerInsights(p.kb.ForPlanner(in.Facts.Symptoms())); insights != "" {
		parts = append(parts, "\n"+insights)
		p.logger.Debug("KB returned insights for symptoms %v", in.Facts.Symptoms())
	}

	if len(parts) == 0 {
		return "No additional context available."
	}
	return strings.Join(parts, "\n")
}

func discoveryContext(in Input) string {
	parts := []string{
		"## 🔍 DISCOVERY MODE - Variable: " + in.DiscoveryVariable,
		"Analyzing env_cmp.txt for candidate values and console output for errors.",
		"",
	}
	envCmp, hasEnvCmp := in.Sources.Get("env_cmp.txt")
	if hasEnvCmp {
		parts = append(parts, "## env_cmp.txt (Discovered Candidates):", envCmp, "")
	}
	console, hasConsole := in.Sources.Get("console.log")
	if hasConsole {
		parts = append(parts, "## console.log (Error Context):", console, "")
	}
	if !hasEnvCmp && !hasConsole {
		parts = append(parts, "## Note: No env_cmp.txt or console.log found in context")
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt assembles the user prompt from goal, context and constraints.
func BuildPrompt(goal, context string, constraints Constraints) string {
	parts := []string{"## Goal:\n" + goal, "\n## Context:\n" + context}
	if constraints != (Constraints{}) {
		if data, err := json.MarshalIndent(constraints, "", "  "); err == nil {
			parts = append(parts, "\n## Constraints:\n"+string(data))
		}
	}
	return strings.Join(parts, "\n")
}
