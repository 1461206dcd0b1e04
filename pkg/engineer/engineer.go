// Package engineer executes a plan: it orders the options by priority, asks
// the model how to implement each one as concrete tool calls, runs those
// calls against the round's tool registry and records one ActionRecord per
// option.
package engineer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"tinker/pkg/agent/llm"
	"tinker/pkg/config"
	"tinker/pkg/knowledge"
	"tinker/pkg/logx"
	"tinker/pkg/plan"
	"tinker/pkg/tools"
)

// Messages recorded for calls the placeholder safeguard refuses.
const (
	BlockedPreviousOption = "⚠️ BLOCKED: add_placeholder_variable already called in a previous option. Only ONE placeholder variable allowed per rehosting cycle."
	BlockedSameOption     = "⚠️ BLOCKED: Multiple add_placeholder_variable calls detected. Only ONE allowed."
)

const resolutionFailed = "LLM failed to generate valid tool calls after retries"

// Run identifies the round a plan executes in.
type Run struct {
	Round int
	// DiscoveryVariable is set when the round resolves a placeholder.
	DiscoveryVariable string
	// History receives each option's record as soon as it is produced. May be nil.
	History *plan.History
}

// OptionSummary is the one-line outcome of an option.
type OptionSummary struct {
	OptionID    string      `json:"option_id"`
	Description string      `json:"description"`
	Status      plan.Status `json:"status"`
	Message     string      `json:"message"`
}

func (s OptionSummary) String() string {
	return fmt.Sprintf("[%s] %s: %s (%s)", s.OptionID, s.Description, s.Status, s.Message)
}

// Result aggregates a plan execution.
type Result struct {
	PlanID    string              `json:"plan_id"`
	Total     int                 `json:"total_options"`
	Completed int                 `json:"completed"`
	Partial   int                 `json:"partial"`
	Failed    int                 `json:"failed"`
	Skipped   int                 `json:"skipped"`
	Records   []plan.ActionRecord `json:"action_records"`
	Summary   []OptionSummary     `json:"summary"`
	// ConfigDiff is the unified diff of the round's document changes.
	ConfigDiff string `json:"config_diff,omitempty"`
}

// SummaryLines renders Summary for the next round's planner context.
func (r Result) SummaryLines() []string {
	out := make([]string, len(r.Summary))
	for i, s := range r.Summary {
		out[i] = s.String()
	}
	return out
}

// Engineer is the execution orchestrator.
type Engineer struct {
	client llm.LLMClient
	cfg    config.Engineer
	kb     *knowledge.Base
	logger *logx.Logger
}

// New creates an engineer. kb may be nil to disable guidance.
func New(client llm.LLMClient, cfg config.Engineer, kb *knowledge.Base, logger *logx.Logger) *Engineer {
	if logger == nil {
		logger = logx.Nop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = config.DefaultEngineerRetries
	}
	if cfg.MaxOptions < 0 {
		cfg.MaxOptions = config.DefaultEngineerMaxOptions
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = config.DefaultEngineerMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = config.DefaultEngineerTemperature
	}
	if cfg.RetryTemperature == 0 {
		cfg.RetryTemperature = config.DefaultEngineerRetryTemp
	}
	return &Engineer{client: client, cfg: cfg, kb: kb, logger: logger}
}

// Order returns the options sorted critical first. Options of equal priority
// keep their plan order. max caps the result; 0 keeps every option.
func Order(options []plan.Option, max int) []plan.Option {
	sorted := make([]plan.Option, len(options))
	copy(sorted, options)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority.Rank() < sorted[j].Priority.Rank()
	})
	if max > 0 && len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}

// Execute runs p against reg. Every failure is recorded in the result; the
// call itself never fails.
func (e *Engineer) Execute(ctx context.Context, reg *tools.Registry, p plan.Plan, run Run) Result {
	ctx = llm.WithCaller(ctx, "engineer")

	e.logger.Printf("\n🔧 Engineer: Executing plan %s with %d options...", p.ID, len(p.Options))
	options := Order(p.Options, e.cfg.MaxOptions)
	if len(options) < len(p.Options) {
		e.logger.Printf("   ⚠️  Limiting to %d highest priority options (out of %d total)", len(options), len(p.Options))
	}
	e.logger.Debug("Plan %s: executing %d options (discovery=%t)", p.ID, len(options), run.DiscoveryVariable != "")

	res := Result{PlanID: p.ID, Total: len(options)}
	for i, opt := range options {
		e.logger.Printf("\n  [%d/%d] [%s] %s", i+1, len(options), opt.Priority, opt.Description)

		rec := e.executeOption(ctx, reg, opt, run)
		res.Records = append(res.Records, rec)
		if run.History != nil {
			run.History.Append(rec)
		}

		switch rec.Status {
		case plan.StatusSuccess:
			res.Completed++
			e.logger.Printf("      ✅ Success: %s", rec.Summary)
		case plan.StatusPartial:
			res.Partial++
			e.logger.Printf("      ⚠️  Partial: %s", rec.Summary)
		case plan.StatusSkipped:
			res.Skipped++
			e.logger.Printf("      ⏭️  Skipped: %s", rec.Summary)
		default:
			res.Failed++
			e.logger.Printf("      ❌ Failed: %s", rec.Summary)
		}
		res.Summary = append(res.Summary, OptionSummary{
			OptionID:    opt.OptionID,
			Description: opt.Description,
			Status:      rec.Status,
			Message:     rec.Summary,
		})
	}

	e.logger.Printf("\n✨ Plan execution complete:")
	e.logger.Printf("   ✅ Completed: %d", res.Completed)
	if res.Partial > 0 {
		e.logger.Printf("   ⚠️  Partial: %d", res.Partial)
	}
	e.logger.Printf("   ⏭️  Skipped: %d", res.Skipped)
	e.logger.Printf("   ❌ Failed: %d", res.Failed)

	if res.Completed+res.Partial > 0 {
		res.ConfigDiff = e.reportChanges(reg)
	}
	return res
}

// executeOption resolves one option and runs its calls.
func (e *Engineer) executeOption(ctx context.Context, reg *tools.Registry, opt plan.Option, run Run) plan.ActionRecord {
	rec := plan.ActionRecord{
		StepID:   fmt.Sprintf("%d-%s", run.Round, opt.OptionID),
		Round:    run.Round,
		OptionID: opt.OptionID,
		Tool:     "unknown",
		Input:    map[string]any{},
	}

	resolution, ok := e.resolve(ctx, reg, opt, run.DiscoveryVariable)
	if !ok {
		rec.Status = plan.StatusFailed
		rec.Summary = resolutionFailed
		return rec
	}
	if resolution.Skipped() {
		rec.Status = plan.StatusSkipped
		rec.Summary = "Skipped: " + resolution.SkipReason
		return rec
	}

	first := resolution.ToolCalls[0]
	rec.Tool = first.Tool
	rec.Input = first.Params
	rec.OutputURI = reg.Document().Path()
	rec.Calls = e.invokeCalls(ctx, reg, resolution.ToolCalls)
	rec.Status, rec.Summary = aggregate(rec.Calls)
	return rec
}

// invokeCalls runs calls in order. The placeholder safeguard is checked
// before each placeholder call; a blocked call fails without stopping the
// remaining calls.
func (e *Engineer) invokeCalls(ctx context.Context, reg *tools.Registry, calls []plan.ToolCall) []plan.CallOutcome {
	outcomes := make([]plan.CallOutcome, 0, len(calls))
	placeholderSeen := false
	for i, call := range calls {
		out := plan.CallOutcome{Tool: call.Tool, Params: call.Params}

		if call.Tool == tools.ToolAddPlaceholder {
			blocked := ""
			if placeholderSeen {
				blocked = BlockedSameOption
			} else if _, active := reg.ActivePlaceholder(); active {
				blocked = BlockedPreviousOption
			}
			placeholderSeen = true
			if blocked != "" {
				e.logger.Warn("  🚫 %s", blocked)
				out.Message = blocked
				outcomes = append(outcomes, out)
				continue
			}
		}

		e.logger.Debug("[EXECUTING %d/%d] Tool: %s params=%v", i+1, len(calls), call.Tool, call.Params)
		result := reg.Invoke(ctx, call.Tool, call.Params)
		out.Success = result.OK()
		out.Message = result.Message
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// aggregate derives an option's status from its calls.
func aggregate(calls []plan.CallOutcome) (plan.Status, string) {
	ok := 0
	for _, c := range calls {
		if c.Success {
			ok++
		}
	}
	switch {
	case ok == len(calls):
		return plan.StatusSuccess, fmt.Sprintf("All %d tool calls executed successfully", len(calls))
	case ok > 0:
		return plan.StatusPartial, fmt.Sprintf("%d/%d tool calls succeeded", ok, len(calls))
	default:
		msg := "All tool calls failed"
		if len(calls) > 0 {
			msg += ": " + calls[len(calls)-1].Message
		}
		return plan.StatusFailed, msg
	}
}

// resolve asks the model for the option's tool calls, retrying with the
// validation error appended. ok is false when every attempt failed.
func (e *Engineer) resolve(ctx context.Context, reg *tools.Registry, opt plan.Option, discoveryVar string) (Resolution, bool) {
	guidance := knowledge.FormatEngineerGuidance(e.kb.ForOption(opt))
	if guidance != "" {
		e.logger.DebugDomain("kb", "Added guidance for option %s", opt.OptionID)
	}
	projectPath := ""
	if path := reg.Document().Path(); path != "" {
		projectPath = filepath.Dir(path)
	}
	system := systemPromptFor(reg.PromptDocumentation(), opt, discoveryVar)
	user := userPrompt(opt, projectPath, guidance)

	var lastErr *plan.ParseError
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		prompt := user
		temperature := e.cfg.Temperature
		if attempt > 1 {
			prompt = retryUserPrompt(user, lastErr.Message)
			temperature = e.cfg.RetryTemperature
		}
		e.logger.DebugBlock(fmt.Sprintf("CALLING LLM FOR IMPLEMENTATION (Attempt %d/%d)", attempt, e.cfg.MaxRetries),
			"--- USER PROMPT ---\n"+prompt)

		resp, err := e.client.Complete(ctx, llm.NewCompletionRequest(system, prompt, e.cfg.MaxTokens, temperature))
		if err != nil {
			lastErr = plan.LLMError(err)
		} else {
			e.logger.DebugBlock("LLM RESPONSE", resp.Content)
			var res Resolution
			res, lastErr = ParseResolution(resp.Content)
			if lastErr == nil {
				if res.Reasoning != "" {
					e.logger.Debug("[LLM REASONING] %s", res.Reasoning)
				}
				if attempt > 1 {
					e.logger.Info("Resolved option %s on retry attempt %d", opt.OptionID, attempt)
				}
				return res, true
			}
		}
		e.logger.Warn("Attempt %d failed: %s", attempt, lastErr.Message)
	}
	e.logger.Warn("All %d attempts failed for option %s. Last error: %s", e.cfg.MaxRetries, opt.OptionID, lastErr.Message)
	return Resolution{}, false
}

// reportChanges prints the document summary and diff and returns the diff.
func (e *Engineer) reportChanges(reg *tools.Registry) string {
	doc := reg.Document()
	e.logger.Section("📋 CONFIGURATION SUMMARY")
	e.logger.Printf("%s", doc.Summary())

	diff, err := doc.UnifiedDiff()
	if err != nil {
		e.logger.Warn("Failed to render config diff: %v", err)
		return ""
	}
	e.logger.Section("📝 CONFIGURATION CHANGES")
	if diff == "" {
		e.logger.Printf("No configuration changes detected")
	} else {
		e.logger.Printf("%s", diff)
	}
	e.logger.Rule()
	return diff
}
