package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinker/internal/mocks"
	"tinker/pkg/agent/llm"
	"tinker/pkg/config"
	"tinker/pkg/discovery"
	"tinker/pkg/eventlog"
	"tinker/pkg/logx"
	"tinker/pkg/metrics"
	"tinker/pkg/penguin"
	"tinker/pkg/persistence"
	"tinker/pkg/plan"
	"tinker/pkg/tools"
)

const initialConfig = "core:\n  arch: armel\n"

const placeholderPlan = `{"id": "plan_r1", "objectives": ["Discover sxid"], "options": [
  {"option_id": "1", "description": "Add sxid placeholder", "problem": "sxid missing",
   "solution": "add placeholder", "priority": "high", "metadata": {"variable_name": "sxid"}}]}`

const otherPlaceholderPlan = `{"id": "plan_r3", "objectives": ["Discover lan_ip"], "options": [
  {"option_id": "1", "description": "Add lan_ip placeholder", "problem": "lan_ip missing",
   "solution": "add placeholder", "priority": "high", "metadata": {"variable_name": "lan_ip"}}]}`

const resolvePlan = `{"id": "plan_r2", "objectives": ["Resolve sxid"], "options": [
  {"option_id": "1", "description": "Set sxid", "problem": "sxid compared against abc",
   "solution": {"action": "set_value", "path": "env.sxid", "value": "abc"}, "priority": "critical"}]}`

func addPlaceholder(name string) string {
	return `{"reasoning": "unknown value", "action": "execute", "tool_calls": [
  {"tool": "add_placeholder_variable", "params": {"name": "` + name + `", "reason": "discover"}}]}`
}

const setDiscovered = `{"reasoning": "candidate found", "action": "execute", "tool_calls": [
  {"tool": "set_discovered_value", "params": {"name": "sxid", "value": "abc", "reason": "env_cmp"}}]}`

const skipResolution = `{"action": "skip", "skip_reason": "needs a human"}`

// scriptByRound answers planner and engineer requests with the reply for
// the engine run currently in progress.
func scriptByRound(mock *mocks.MockLLMClient, engine *mocks.FakeEngine, planner, engineer map[int]string) {
	mock.OnComplete(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		replies := planner
		if llm.CallerFrom(ctx) == "engineer" {
			replies = engineer
		}
		reply, ok := replies[engine.Runs()]
		if !ok {
			return llm.CompletionResponse{Content: "not json"}, nil
		}
		return llm.CompletionResponse{Content: reply}, nil
	})
}

func testConfig(t *testing.T, rounds int) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Penguin.MaxIter = rounds
	cfg.Penguin.OutputDir = t.TempDir()
	return cfg
}

func firmwareFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, []byte("firmware"), 0o644))
	return path
}

func newWorkflow(t *testing.T, cfg config.Config, deps Deps) *Workflow {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logx.NewLogger("workflow", logx.WithWriter(&strings.Builder{}))
	}
	w, err := New(cfg, deps)
	require.NoError(t, err)
	return w
}

func TestRunDiscoveryLifecycle(t *testing.T) {
	dir := t.TempDir()
	engine := mocks.NewFakeEngine(dir, initialConfig)
	mock := mocks.NewMockLLMClient()
	scriptByRound(mock, engine,
		map[int]string{1: placeholderPlan, 2: resolvePlan},
		map[int]string{1: addPlaceholder("sxid"), 2: setDiscovered, 3: skipResolution},
	)

	store, err := persistence.Open(filepath.Join(dir, "tinker.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	events, err := eventlog.NewWriter(filepath.Join(dir, "events"))
	require.NoError(t, err)
	defer func() { _ = events.Close() }()

	cfg := testConfig(t, 3)
	cfg.General.MetricsFile = filepath.Join(dir, "tinker.prom")
	w := newWorkflow(t, cfg, Deps{
		Engine:  engine,
		Client:  mock,
		Store:   store,
		Events:  events,
		Metrics: metrics.New(),
	})

	sum, err := w.Run(context.Background(), firmwareFile(t))
	require.NoError(t, err)
	assert.Empty(t, sum.Errors)
	require.Len(t, sum.Rounds, 3)
	assert.Equal(t, 3, engine.Runs())

	assert.Equal(t, discovery.State{Mode: discovery.ModeNormal}, sum.Rounds[0].Discovery)
	assert.Equal(t, discovery.State{Mode: discovery.ModeDiscovery, Variable: "sxid"}, sum.Rounds[1].Discovery)
	assert.Equal(t, discovery.State{Mode: discovery.ModeNormal}, sum.Rounds[2].Discovery)
	assert.Equal(t, discovery.State{Mode: discovery.ModeNormal}, sum.Discovery)

	assert.Equal(t, 1, sum.Rounds[0].Result.Completed)
	assert.Equal(t, 1, sum.Rounds[1].Result.Completed)
	assert.True(t, sum.Rounds[2].Plan.Fallback)
	assert.Equal(t, 1, sum.Rounds[2].Result.Skipped)

	configs := engine.Configs()
	require.Len(t, configs, 3)
	assert.Contains(t, configs[1], tools.Sentinel)
	assert.Contains(t, configs[2], "sxid: abc")

	require.Len(t, sum.Actions, 3)
	assert.Equal(t, "1-1", sum.Actions[0].StepID)
	assert.Equal(t, plan.PlaceholderTool, sum.Actions[0].Tool)
	assert.Equal(t, "2-1", sum.Actions[1].StepID)

	run, err := store.GetRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunCompleted, run.Status)
	assert.Equal(t, engine.ProjectPath, run.ProjectPath)
	rounds, err := store.ListRounds(sum.RunID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, "sxid", rounds[1].DiscoveryVariable)
	assert.True(t, rounds[2].Fallback)
	assert.Contains(t, rounds[0].ConfigDiff, tools.Sentinel)
	actions, err := store.ListActions(sum.RunID)
	require.NoError(t, err)
	assert.Len(t, actions, 3)

	logged, err := eventlog.ReadEvents(events.CurrentLogFile())
	require.NoError(t, err)
	var types []eventlog.Type
	for _, ev := range logged {
		types = append(types, ev.Type)
	}
	assert.Equal(t, eventlog.RunStarted, types[0])
	assert.Equal(t, eventlog.RunFinished, types[len(types)-1])
	assert.Contains(t, types, eventlog.DiscoveryEntered)
	assert.Contains(t, types, eventlog.DiscoveryExited)
	assert.Contains(t, types, eventlog.PlanFallback)

	prom, err := os.ReadFile(cfg.General.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "tinker_plan_fallbacks_total 1")
	assert.Contains(t, string(prom), `tinker_discovery_transitions_total{transition="entered"} 1`)
	assert.Contains(t, string(prom), `tinker_rounds_total{outcome="completed"} 3`)
}

func TestRoundFailureDoesNotAbortRun(t *testing.T) {
	dir := t.TempDir()
	engine := mocks.NewFakeEngine(dir, initialConfig)
	engine.RunFunc = func(n int, projectPath string) (penguin.RunResult, error) {
		if n == 2 {
			return penguin.RunResult{}, errors.New("container exited")
		}
		return mocks.WriteResults(projectPath, n, map[string]string{penguin.ConsoleLog: "boot\n"})
	}
	mock := mocks.NewMockLLMClient()
	mock.RespondWith(skipResolution)

	w := newWorkflow(t, testConfig(t, 3), Deps{Engine: engine, Client: mock})
	sum, err := w.Run(context.Background(), firmwareFile(t))
	require.NoError(t, err)

	require.Len(t, sum.Rounds, 3)
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, "Multi-agent workflow failed: penguin execution failed: container exited", sum.Errors[0])
	assert.Equal(t, sum.Errors[0], sum.Rounds[1].Err)
	assert.Empty(t, sum.Rounds[2].Err)
}

func TestPanicInRoundIsRecovered(t *testing.T) {
	dir := t.TempDir()
	engine := mocks.NewFakeEngine(dir, initialConfig)
	engine.RunFunc = func(int, string) (penguin.RunResult, error) {
		panic("results parser exploded")
	}
	mock := mocks.NewMockLLMClient()

	w := newWorkflow(t, testConfig(t, 2), Deps{Engine: engine, Client: mock})
	sum, err := w.Run(context.Background(), firmwareFile(t))
	require.NoError(t, err)
	require.Len(t, sum.Errors, 2)
	assert.Equal(t, "Multi-agent workflow failed: results parser exploded", sum.Errors[0])
	assert.Empty(t, mock.Calls())
}

func TestDiscoveryEndsWhenResolutionRoundFails(t *testing.T) {
	dir := t.TempDir()
	engine := mocks.NewFakeEngine(dir, initialConfig)
	engine.RunFunc = func(n int, projectPath string) (penguin.RunResult, error) {
		if n == 2 {
			return penguin.RunResult{}, errors.New("timeout")
		}
		return mocks.WriteResults(projectPath, n, map[string]string{penguin.ConsoleLog: "boot\n"})
	}
	mock := mocks.NewMockLLMClient()
	scriptByRound(mock, engine,
		map[int]string{1: placeholderPlan, 3: otherPlaceholderPlan},
		map[int]string{1: addPlaceholder("sxid"), 3: addPlaceholder("lan_ip")},
	)

	w := newWorkflow(t, testConfig(t, 3), Deps{Engine: engine, Client: mock})
	sum, err := w.Run(context.Background(), firmwareFile(t))
	require.NoError(t, err)

	assert.Equal(t, "sxid", sum.Rounds[1].Discovery.Variable)
	assert.Equal(t, discovery.ModeNormal, sum.Rounds[2].Discovery.Mode)
	// The resolved window lets a new placeholder through.
	assert.Equal(t, 1, sum.Rounds[2].Result.Completed)
	assert.Equal(t, discovery.State{Mode: discovery.ModeDiscovery, Variable: "lan_ip"}, sum.Discovery)
}

func TestPreviousIterationsReachPlanner(t *testing.T) {
	dir := t.TempDir()
	engine := mocks.NewFakeEngine(dir, initialConfig)
	mock := mocks.NewMockLLMClient()
	scriptByRound(mock, engine,
		map[int]string{1: placeholderPlan},
		map[int]string{1: addPlaceholder("sxid"), 2: skipResolution},
	)

	w := newWorkflow(t, testConfig(t, 2), Deps{Engine: engine, Client: mock})
	_, err := w.Run(context.Background(), firmwareFile(t))
	require.NoError(t, err)

	var plannerPrompts []string
	for _, call := range mock.Calls() {
		if strings.Contains(call.Messages[1].Content, "## Goal:") {
			plannerPrompts = append(plannerPrompts, call.Messages[1].Content)
		}
	}
	require.NotEmpty(t, plannerPrompts)
	assert.Contains(t, plannerPrompts[0], "max_placeholder_variables")
	last := plannerPrompts[len(plannerPrompts)-1]
	assert.Contains(t, last, "DISCOVERY MODE - Variable: sxid")
}

func TestInputValidationFailure(t *testing.T) {
	dir := t.TempDir()
	engine := mocks.NewFakeEngine(dir, initialConfig)
	store, err := persistence.Open(filepath.Join(dir, "tinker.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	w := newWorkflow(t, testConfig(t, 3), Deps{Engine: engine, Client: mocks.NewMockLLMClient(), Store: store})
	sum, err := w.Run(context.Background(), filepath.Join(dir, "missing.bin"))
	assert.ErrorIs(t, err, ErrInputValidation)
	assert.Equal(t, []string{"Input validation failed"}, sum.Errors)
	assert.Empty(t, sum.Rounds)
	assert.Zero(t, engine.Runs())

	run, err := store.GetRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunAborted, run.Status)
	assert.Equal(t, []string{"Input validation failed"}, run.Errors)
}

func TestInvalidSettingsFailValidation(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.LLM.Provider = "carrier-pigeon"
	engine := mocks.NewFakeEngine(t.TempDir(), initialConfig)

	w := newWorkflow(t, cfg, Deps{Engine: engine, Client: mocks.NewMockLLMClient()})
	_, err := w.Run(context.Background(), firmwareFile(t))
	assert.ErrorIs(t, err, ErrInputValidation)
}

func TestInitFailure(t *testing.T) {
	for name, engine := range map[string]*mocks.FakeEngine{
		"exit code": {InitExitCode: 1},
		"error":     {InitErr: errors.New("docker not running")},
	} {
		t.Run(name, func(t *testing.T) {
			w := newWorkflow(t, testConfig(t, 3), Deps{Engine: engine, Client: mocks.NewMockLLMClient()})
			sum, err := w.Run(context.Background(), firmwareFile(t))
			assert.ErrorIs(t, err, ErrInit)
			assert.Equal(t, []string{"Penguin init failed"}, sum.Errors)
			assert.Zero(t, engine.Runs())
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(config.Default(), Deps{Client: mocks.NewMockLLMClient()})
	assert.Error(t, err)
	_, err = New(config.Default(), Deps{Engine: &mocks.FakeEngine{}})
	assert.Error(t, err)
}
