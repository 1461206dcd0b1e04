package workflow

import (
	"path/filepath"
	"time"

	"tinker/pkg/discovery"
	"tinker/pkg/engineer"
	"tinker/pkg/plan"
)

// RoundSummary is the outcome of one round.
type RoundSummary struct {
	Round int `json:"round"`
	// Discovery is the state the round ran in.
	Discovery        discovery.State `json:"discovery"`
	Plan             plan.Plan       `json:"plan"`
	Result           engineer.Result `json:"result"`
	Err              string          `json:"error,omitempty"`
	PromptTokens     int64           `json:"prompt_tokens"`
	CompletionTokens int64           `json:"completion_tokens"`
}

func (rs RoundSummary) planJSON() string {
	if rs.Plan.ID == "" {
		return ""
	}
	return rs.Plan.JSON()
}

// Summary is the outcome of a run.
type Summary struct {
	RunID       string              `json:"run_id"`
	Firmware    string              `json:"firmware"`
	ProjectPath string              `json:"project_path,omitempty"`
	Iterations  int                 `json:"iterations"`
	Rounds      []RoundSummary      `json:"rounds"`
	Actions     []plan.ActionRecord `json:"actions"`
	Discovery   discovery.State     `json:"discovery"`
	Errors      []string            `json:"errors"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
}

// ConfigPath is the project's config.yaml, empty when init did not succeed.
func (s *Summary) ConfigPath() string {
	if s.ProjectPath == "" {
		return ""
	}
	return filepath.Join(s.ProjectPath, "config.yaml")
}

// LastPlan returns the plan of the last round that produced one.
func (s *Summary) LastPlan() (plan.Plan, bool) {
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		if s.Rounds[i].Plan.ID != "" {
			return s.Rounds[i].Plan, true
		}
	}
	return plan.Plan{}, false
}

// LastResult returns the execution result of the last round that ran one.
func (s *Summary) LastResult() (engineer.Result, bool) {
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		if s.Rounds[i].Result.PlanID != "" {
			return s.Rounds[i].Result, true
		}
	}
	return engineer.Result{}, false
}

// Counts totals option outcomes across every round.
func (s *Summary) Counts() (completed, partial, failed, skipped int) {
	for _, r := range s.Rounds {
		completed += r.Result.Completed
		partial += r.Result.Partial
		failed += r.Result.Failed
		skipped += r.Result.Skipped
	}
	return completed, partial, failed, skipped
}

func (w *Workflow) printIterationSummary(p plan.Plan, res engineer.Result) {
	w.logger.Printf("  ✓ Multi-agent workflow completed")
	w.logger.Printf("    Plan ID: %s", p.ID)
	w.logger.Printf("    Objectives: %d", len(p.Objectives))
	w.logger.Printf("    Options executed: %d", res.Total)
	w.logger.Printf("    Actions completed: %d", len(res.Records))
	w.logger.Printf("    Total accumulated actions: %d", w.history.Len())
}

func (w *Workflow) printFinalSummary(s *Summary) {
	w.logger.Section("✨ Multi-Agent Workflow Complete")
	w.logger.Printf("Total iterations completed: %d", len(s.Rounds))
	w.logger.Printf("Total accumulated actions: %d\n", len(s.Actions))

	if p, ok := s.LastPlan(); ok {
		w.logger.Printf("Final Plan Summary:")
		w.logger.Printf("  ID: %s", p.ID)
		w.logger.Printf("  Objectives:")
		for i, obj := range p.Objectives {
			w.logger.Printf("    %d. %s", i+1, obj)
		}
		w.logger.Printf("")
	}

	if res, ok := s.LastResult(); ok && len(res.Summary) > 0 {
		w.logger.Printf("Final Execution Summary:")
		for _, item := range res.Summary {
			icon := "❌"
			if item.Status == plan.StatusSuccess {
				icon = "✅"
			}
			w.logger.Printf("  %s %s", icon, item.Description)
		}
		w.logger.Printf("")
	}

	if len(s.Errors) > 0 {
		w.logger.Printf("Errors encountered:")
		for _, e := range s.Errors {
			w.logger.Printf("  ❌ %s", e)
		}
		w.logger.Printf("")
	}
}
