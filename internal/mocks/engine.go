package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"tinker/pkg/penguin"
)

// FakeEngine implements penguin.Engine against a temporary project directory.
type FakeEngine struct {
	// ProjectPath is created by Init along with config.yaml.
	ProjectPath   string
	InitialConfig string
	InitExitCode  int
	InitErr       error

	// RunFunc produces the result of the n-th run (1-based). By default each
	// run writes a console.log and collects it.
	RunFunc func(n int, projectPath string) (penguin.RunResult, error)

	mu      sync.Mutex
	runs    int
	configs []string
}

// NewFakeEngine creates an engine whose project lives under dir.
func NewFakeEngine(dir, initialConfig string) *FakeEngine {
	return &FakeEngine{
		ProjectPath:   filepath.Join(dir, "project"),
		InitialConfig: initialConfig,
	}
}

// Init implements penguin.Engine.
func (f *FakeEngine) Init(_ context.Context, firmware string) (penguin.InitResult, error) {
	if f.InitErr != nil {
		return penguin.InitResult{}, f.InitErr
	}
	if f.InitExitCode != 0 {
		return penguin.InitResult{ExitCode: f.InitExitCode, Output: "init failed for " + firmware}, nil
	}
	if err := os.MkdirAll(f.ProjectPath, 0o755); err != nil {
		return penguin.InitResult{}, fmt.Errorf("failed to create project: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.ProjectPath, "config.yaml"), []byte(f.InitialConfig), 0o644); err != nil {
		return penguin.InitResult{}, fmt.Errorf("failed to write config: %w", err)
	}
	return penguin.InitResult{
		Output:      "Creating project at generated path: /host_projects/project",
		ProjectPath: f.ProjectPath,
	}, nil
}

// Run implements penguin.Engine. The config.yaml seen by each run is kept.
func (f *FakeEngine) Run(_ context.Context, projectPath string) (penguin.RunResult, error) {
	cfg, err := os.ReadFile(filepath.Join(projectPath, "config.yaml"))
	if err != nil {
		return penguin.RunResult{}, fmt.Errorf("project config not found: %w", err)
	}

	f.mu.Lock()
	f.runs++
	n := f.runs
	f.configs = append(f.configs, string(cfg))
	fn := f.RunFunc
	f.mu.Unlock()

	if fn == nil {
		fn = defaultRun
	}
	return fn(n, projectPath)
}

// Runs is the number of Run calls so far.
func (f *FakeEngine) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// Configs returns the config.yaml contents seen by each run.
func (f *FakeEngine) Configs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.configs))
	copy(out, f.configs)
	return out
}

func defaultRun(n int, projectPath string) (penguin.RunResult, error) {
	return WriteResults(projectPath, n, map[string]string{
		penguin.ConsoleLog: fmt.Sprintf("boot run %d\n", n),
	})
}

// WriteResults writes files into results/<n> and collects them the way the
// real engine client does.
func WriteResults(projectPath string, n int, files map[string]string) (penguin.RunResult, error) {
	dir := filepath.Join(projectPath, "results", strconv.Itoa(n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return penguin.RunResult{}, err
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return penguin.RunResult{}, err
		}
	}
	res := penguin.RunResult{Output: fmt.Sprintf("run %d finished", n)}
	results, err := penguin.Collect(projectPath, nil)
	if err != nil {
		res.ResultsErr = err
	} else {
		res.Results = results
	}
	return res, nil
}

var _ penguin.Engine = (*FakeEngine)(nil)
