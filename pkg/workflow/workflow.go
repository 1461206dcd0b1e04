// Package workflow is the iteration controller. It initializes the engine
// project once and then runs a fixed number of rounds: engine run, context
// assembly, planning, execution and the discovery transition. A failing round
// is recorded and the next round still runs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tinker/pkg/agent/llm"
	"tinker/pkg/config"
	"tinker/pkg/configdoc"
	"tinker/pkg/discovery"
	"tinker/pkg/engineer"
	"tinker/pkg/eventlog"
	"tinker/pkg/knowledge"
	"tinker/pkg/logx"
	"tinker/pkg/metrics"
	"tinker/pkg/penguin"
	"tinker/pkg/persistence"
	"tinker/pkg/plan"
	"tinker/pkg/planner"
	"tinker/pkg/tools"
	"tinker/pkg/utils"
)

// Errors that end a run before any round.
var (
	ErrInputValidation = errors.New("input validation failed")
	ErrInit            = errors.New("penguin init failed")
)

// Deps are the collaborators of a workflow. Engine and Client are required;
// the rest may be nil.
type Deps struct {
	Engine  penguin.Engine
	Client  llm.LLMClient
	Store   *persistence.Store
	Events  *eventlog.Writer
	Metrics *metrics.Workflow
	Counter *utils.TokenCounter
	Logger  *logx.Logger
}

// Workflow runs the rehosting loop for one firmware image.
type Workflow struct {
	cfg       config.Config
	deps      Deps
	planner   *planner.Planner
	engineer  *engineer.Engineer
	machine   *discovery.Machine
	assembler *penguin.Assembler
	logger    *logx.Logger

	history   *plan.History
	summaries []string
	runID     string
}

// New wires a workflow from validated settings.
func New(cfg config.Config, deps Deps) (*Workflow, error) {
	if deps.Engine == nil {
		return nil, errors.New("workflow requires an engine")
	}
	if deps.Client == nil {
		return nil, errors.New("workflow requires an LLM client")
	}
	if deps.Logger == nil {
		deps.Logger = logx.Nop()
	}

	var kb *knowledge.Base
	if cfg.Context.KnowledgeBaseEnabled() {
		kb = knowledge.Default()
	}

	machine, err := discovery.NewMachine(deps.Logger.Child("discovery"))
	if err != nil {
		return nil, err
	}

	return &Workflow{
		cfg:       cfg,
		deps:      deps,
		planner:   planner.New(deps.Client, cfg.Planner, kb, deps.Logger.Child("planner")),
		engineer:  engineer.New(deps.Client, cfg.Engineer, kb, deps.Logger.Child("engineer")),
		machine:   machine,
		assembler: penguin.NewAssembler(deps.Counter, cfg.Context.ConsoleTokenBudget),
		logger:    deps.Logger,
		history:   &plan.History{},
	}, nil
}

// Run executes the whole workflow. The summary is always returned; err is
// ErrInputValidation or ErrInit when the run ended before its first round.
// Round failures are only reported in Summary.Errors.
func (w *Workflow) Run(ctx context.Context, firmware string) (*Summary, error) {
	w.runID = utils.NewRunID()
	sum := &Summary{
		RunID:      w.runID,
		Firmware:   firmware,
		Iterations: w.cfg.Penguin.MaxIter,
		StartedAt:  time.Now(),
	}

	w.logger.Section("🚀 LLM-GUIDED FIRMWARE REHOSTING WORKFLOW")
	w.startRun(sum)

	w.logger.Printf("📋 Validating inputs...")
	if err := w.validate(firmware); err != nil {
		w.logger.Printf("  ✗ %v", err)
		return w.abort(sum, "Input validation failed", ErrInputValidation)
	}
	w.logger.Printf("  ✓ Inputs validated\n")

	w.logger.Printf("🐧 Penguin init...")
	initRes, err := w.deps.Engine.Init(ctx, firmware)
	if err != nil {
		w.logger.Printf("  ❌ Penguin init failed: %v", err)
		return w.abort(sum, "Penguin init failed", ErrInit)
	}
	if !initRes.OK() {
		w.logger.Printf("  ❌ Penguin init failed (exit code %d)", initRes.ExitCode)
		return w.abort(sum, "Penguin init failed", ErrInit)
	}
	sum.ProjectPath = initRes.ProjectPath
	w.logger.Printf("  ✓ Project initialized at: %s\n", initRes.ProjectPath)
	if w.deps.Store != nil {
		if err := w.deps.Store.SetProjectPath(w.runID, initRes.ProjectPath); err != nil {
			w.logger.Warn("Failed to record project path: %v", err)
		}
	}

	for i := 0; i < w.cfg.Penguin.MaxIter; i++ {
		rs := w.round(ctx, i, firmware, initRes)
		sum.Rounds = append(sum.Rounds, rs)
		if rs.Err != "" {
			sum.Errors = append(sum.Errors, rs.Err)
		}
	}

	sum.Actions = w.history.Records()
	sum.Discovery = w.machine.State()
	sum.FinishedAt = time.Now()
	w.printFinalSummary(sum)
	w.finishRun(sum, persistence.RunCompleted)
	return sum, nil
}

func (w *Workflow) validate(firmware string) error {
	info, err := os.Stat(firmware)
	if err != nil {
		return fmt.Errorf("firmware file not found: %s", firmware)
	}
	if info.IsDir() {
		return fmt.Errorf("firmware path is a directory: %s", firmware)
	}
	if err := w.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

func (w *Workflow) abort(sum *Summary, msg string, cause error) (*Summary, error) {
	sum.Errors = append(sum.Errors, msg)
	sum.FinishedAt = time.Now()
	w.printFinalSummary(sum)
	w.finishRun(sum, persistence.RunAborted)
	return sum, cause
}

// round runs one iteration. index is zero-based. Panics are recovered into
// the round's error.
func (w *Workflow) round(ctx context.Context, index int, firmware string, initRes penguin.InitResult) (rs RoundSummary) {
	n := index + 1
	started := time.Now()
	state := w.machine.State()
	historyStart := w.history.Len()
	tokensBefore, _ := w.deps.Metrics.Tokens()

	rs = RoundSummary{Round: n, Discovery: state}
	w.logger.Section(fmt.Sprintf("Max Iterations: %d, Current Iteration: %d", w.cfg.Penguin.MaxIter, n))
	w.emit(eventlog.RoundStarted, n, map[string]any{"discovery": state.String()})
	if state.Active() {
		w.logger.Printf("🔍 DISCOVERY MODE active for variable: %s", state.Variable)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				rs.Err = fmt.Sprintf("Multi-agent workflow failed: %v", r)
			}
		}()
		if err := w.executeRound(ctx, index, firmware, initRes, state, &rs); err != nil {
			rs.Err = fmt.Sprintf("Multi-agent workflow failed: %v", err)
		}
	}()

	if rs.Err != "" {
		w.logger.Printf("  ❌ Multi-agent workflow exception (iteration %d): %s", n, rs.Err)
		w.emit(eventlog.RoundFailed, n, map[string]any{"error": rs.Err})
	}

	// The resolution round ends discovery even when it failed.
	w.observeDiscovery(n, w.history.Since(historyStart))

	outcome := metrics.RoundCompleted
	if rs.Err != "" {
		outcome = metrics.RoundFailed
	}
	w.deps.Metrics.ObserveRound(outcome, time.Since(started))
	tokensAfter, _ := w.deps.Metrics.Tokens()
	rs.PromptTokens = tokensAfter.Prompt - tokensBefore.Prompt
	rs.CompletionTokens = tokensAfter.Completion - tokensBefore.Completion

	w.recordRound(rs, w.history.Since(historyStart))
	return rs
}

func (w *Workflow) executeRound(ctx context.Context, index int, firmware string, initRes penguin.InitResult, state discovery.State, rs *RoundSummary) error {
	projectPath := initRes.ProjectPath

	w.logger.Printf("Iteration %d Running Penguin...", index)
	runRes, err := w.deps.Engine.Run(ctx, projectPath)
	if err != nil {
		return fmt.Errorf("penguin execution failed: %w", err)
	}
	w.logger.Printf("  ✓ Penguin run completed (exit code: %d)", runRes.ExitCode)
	if runRes.Results != nil {
		w.logger.Printf("  ✓ Results collected from run #%d", runRes.Results.RunNumber)
	} else {
		w.logger.Printf("  ⚠ Results collection incomplete")
	}

	w.logger.Printf("🤖 Running multi-agent workflow (Planner → Engineer)...")
	previous := w.history.Records()
	sources := w.assembler.Sources(penguin.RoundInput{
		Firmware:          firmware,
		ProjectPath:       projectPath,
		Init:              initRes,
		Run:               runRes,
		Round:             index,
		PreviousActions:   previous,
		PreviousSummaries: w.summaries,
	})

	facts := runRes.Results.Facts()
	facts.DiscoveryMode = state.Active()

	p := w.planner.Generate(ctx, planner.Input{
		ProjectPath:       projectPath,
		Sources:           sources,
		PreviousActions:   previous,
		PreviousSummaries: w.summaries,
		Facts:             facts,
		Constraints: planner.Constraints{
			MaxIterations:           w.cfg.Penguin.MaxIter,
			MaxOptionsPerRound:      w.cfg.Engineer.MaxOptions,
			MaxPlaceholderVariables: 1,
			RoundsRemaining:         w.cfg.Penguin.MaxIter - index - 1,
		},
		DiscoveryVariable: state.Variable,
	})
	rs.Plan = p
	if p.Fallback {
		w.deps.Metrics.ObserveFallback()
		w.emit(eventlog.PlanFallback, rs.Round, map[string]any{"plan_id": p.ID})
	} else {
		w.emit(eventlog.PlanGenerated, rs.Round, map[string]any{"plan_id": p.ID, "options": len(p.Options)})
	}

	doc, err := configdoc.Load(filepath.Join(projectPath, "config.yaml"))
	if err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}
	reg := tools.NewRegistry(doc, w.history, tools.Options{
		ProjectPath: projectPath,
		Logger:      w.logger.Child("tools"),
	})

	res := w.engineer.Execute(ctx, reg, p, engineer.Run{
		Round:             rs.Round,
		DiscoveryVariable: state.Variable,
		History:           w.history,
	})
	rs.Result = res
	w.summaries = append(w.summaries, res.SummaryLines()...)

	for _, rec := range res.Records {
		w.deps.Metrics.ObserveOption(string(rec.Status))
		w.emit(eventlog.OptionExecuted, rs.Round, map[string]any{
			"step_id": rec.StepID,
			"tool":    rec.Tool,
			"status":  string(rec.Status),
			"summary": rec.Summary,
		})
	}

	w.printIterationSummary(p, res)
	return nil
}

func (w *Workflow) observeDiscovery(round int, records []plan.ActionRecord) {
	t, changed := w.machine.Observe(records)
	if !changed {
		return
	}
	switch {
	case t.Entered():
		w.logger.Printf("\n🔍 ENTERING DISCOVERY MODE for variable: %s", t.To.Variable)
		w.logger.Printf("   Next iteration will focus on discovering value for this variable")
		w.deps.Metrics.ObserveDiscovery(metrics.TransitionEntered)
		w.emit(eventlog.DiscoveryEntered, round, map[string]any{"variable": t.To.Variable})
	case t.Exited():
		w.history.MarkDiscoveryResolved()
		w.logger.Printf("\n✅ EXITING DISCOVERY MODE for variable: %s", t.From.Variable)
		w.logger.Printf("   Discovery process completed")
		w.deps.Metrics.ObserveDiscovery(metrics.TransitionExited)
		w.emit(eventlog.DiscoveryExited, round, map[string]any{"variable": t.From.Variable})
	}
}

func (w *Workflow) emit(typ eventlog.Type, round int, data map[string]any) {
	if err := w.deps.Events.Write(eventlog.Event{RunID: w.runID, Round: round, Type: typ, Data: data}); err != nil {
		w.logger.Warn("Failed to write %s event: %v", typ, err)
	}
}

func (w *Workflow) startRun(sum *Summary) {
	w.emit(eventlog.RunStarted, 0, map[string]any{
		"firmware": sum.Firmware,
		"max_iter": w.cfg.Penguin.MaxIter,
		"model":    w.deps.Client.GetModelName(),
	})
	if w.deps.Store == nil {
		return
	}
	err := w.deps.Store.StartRun(&persistence.Run{
		ID:        w.runID,
		Firmware:  sum.Firmware,
		Provider:  w.cfg.LLM.Provider,
		Model:     w.deps.Client.GetModelName(),
		MaxIter:   w.cfg.Penguin.MaxIter,
		StartedAt: sum.StartedAt,
	})
	if err != nil {
		w.logger.Warn("Failed to record run: %v", err)
	}
}

func (w *Workflow) finishRun(sum *Summary, status string) {
	w.emit(eventlog.RunFinished, 0, map[string]any{
		"status":  status,
		"actions": len(sum.Actions),
		"errors":  len(sum.Errors),
	})
	if w.deps.Store != nil {
		if err := w.deps.Store.FinishRun(w.runID, status, sum.Errors, sum.FinishedAt); err != nil {
			w.logger.Warn("Failed to finish run record: %v", err)
		}
	}
	if path := w.cfg.General.MetricsFile; path != "" {
		if err := w.deps.Metrics.WriteTextfile(path); err != nil {
			w.logger.Warn("Failed to write metrics: %v", err)
		}
	}
}

func (w *Workflow) recordRound(rs RoundSummary, records []plan.ActionRecord) {
	if w.deps.Store == nil {
		return
	}
	now := time.Now()
	err := w.deps.Store.RecordRound(&persistence.Round{
		RunID:             w.runID,
		Round:             rs.Round,
		PlanID:            rs.Plan.ID,
		PlanJSON:          rs.planJSON(),
		Fallback:          rs.Plan.Fallback,
		DiscoveryState:    string(rs.Discovery.Mode),
		DiscoveryVariable: rs.Discovery.Variable,
		Completed:         rs.Result.Completed,
		Partial:           rs.Result.Partial,
		Failed:            rs.Result.Failed,
		Skipped:           rs.Result.Skipped,
		ConfigDiff:        rs.Result.ConfigDiff,
		Error:             rs.Err,
		CreatedAt:         now,
		PromptTokens:      rs.PromptTokens,
		CompletionTokens:  rs.CompletionTokens,
	})
	if err != nil {
		w.logger.Warn("Failed to record round %d: %v", rs.Round, err)
		return
	}
	if err := w.deps.Store.RecordActions(w.runID, records, now); err != nil {
		w.logger.Warn("Failed to record actions of round %d: %v", rs.Round, err)
	}
}
