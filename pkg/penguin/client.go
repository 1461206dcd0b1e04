// Package penguin drives the external rehosting engine: it initializes a
// firmware project, runs the emulation for one round, collects the result
// artifacts and assembles them into planner context.
package penguin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"tinker/pkg/config"
	execpkg "tinker/pkg/exec"
	"tinker/pkg/logx"
)

// virtualRoot is where the engine container mounts the output directory.
const virtualRoot = "/host_projects"

var projectPathPattern = regexp.MustCompile(`Creating project at generated path:\s+(/host_projects/\S+)`)

// ErrNoProjectPath is returned when init output names no project.
var ErrNoProjectPath = errors.New("project path not found in init output")

// Engine is the rehosting engine seen by the workflow.
type Engine interface {
	Init(ctx context.Context, firmware string) (InitResult, error)
	Run(ctx context.Context, projectPath string) (RunResult, error)
}

// InitResult is the outcome of project initialization.
type InitResult struct {
	ExitCode int
	// Output is the combined output with colour removed.
	Output string
	// ProjectPath is the host path of the created project, empty when it
	// could not be determined.
	ProjectPath string
}

// OK reports whether init exited cleanly and named a project.
func (r InitResult) OK() bool {
	return r.ExitCode == 0 && r.ProjectPath != ""
}

// RunResult is the outcome of one engine run.
type RunResult struct {
	ExitCode int
	Output   string
	// Results is nil when no results directory was found; ResultsErr says why.
	Results    *Results
	ResultsErr error
}

// Client runs the engine binary through an executor.
type Client struct {
	cfg      config.Penguin
	executor execpkg.Executor
	echo     io.Writer
	logger   *logx.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithExecutor replaces the local executor.
func WithExecutor(e execpkg.Executor) ClientOption {
	return func(c *Client) { c.executor = e }
}

// WithEcho sets where engine output is echoed while it runs. nil disables the echo.
func WithEcho(w io.Writer) ClientOption {
	return func(c *Client) { c.echo = w }
}

// WithLogger sets the client logger.
func WithLogger(l *logx.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an engine client. Output is echoed to stdout by default.
func NewClient(cfg config.Penguin, opts ...ClientOption) *Client {
	c := &Client{
		cfg:      cfg,
		executor: execpkg.NewLocalExec(),
		echo:     os.Stdout,
		logger:   logx.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.Binary == "" {
		c.cfg.Binary = config.DefaultPenguinBinary
	}
	return c
}

// Init creates the project for firmware. A non-zero exit or unparsable
// output is reported in the result; err covers failures to run at all.
func (c *Client) Init(ctx context.Context, firmware string) (InitResult, error) {
	if _, err := os.Stat(firmware); err != nil {
		return InitResult{}, fmt.Errorf("firmware file not found: %s: %w", firmware, err)
	}

	c.logger.Printf("\n===== Running Penguin INIT =====")
	cmd := []string{c.cfg.Binary, "--image", c.cfg.Image, "init", "--force", firmware}
	c.logger.Printf("[cmd] %s", strings.Join(cmd, " "))

	res, err := c.stream(ctx, cmd)
	if err != nil {
		return InitResult{}, fmt.Errorf("penguin init failed: %w", err)
	}

	out := InitResult{ExitCode: res.ExitCode, Output: StripANSI(res.Combined())}
	if path, ok := ParseProjectPath(out.Output, c.cfg.OutputDir); ok {
		out.ProjectPath = path
		c.logger.Printf("[Mapped] Docker path → Host path: %s", path)
	}
	return out, nil
}

// Run executes one emulation round against the project's config.yaml and
// collects the newest results.
func (c *Client) Run(ctx context.Context, projectPath string) (RunResult, error) {
	if _, err := os.Stat(projectPath); err != nil {
		return RunResult{}, fmt.Errorf("project directory not found: %s: %w", projectPath, err)
	}
	configFile := filepath.Join(projectPath, "config.yaml")
	if _, err := os.Stat(configFile); err != nil {
		return RunResult{}, fmt.Errorf("project config not found: %s: %w", configFile, err)
	}

	c.logger.Printf("\n===== Running Penguin for %d minutes =====", c.cfg.IterationTimeout)
	cmd := []string{
		c.cfg.Binary, "--image", c.cfg.Image,
		"run", configFile,
		"--timeout", strconv.Itoa(c.cfg.RunTimeoutSeconds()),
	}
	c.logger.Printf("[cmd] %s", strings.Join(cmd, " "))

	res, err := c.stream(ctx, cmd)
	if err != nil {
		return RunResult{}, fmt.Errorf("penguin run failed: %w", err)
	}

	out := RunResult{ExitCode: res.ExitCode, Output: StripANSI(res.Combined())}
	results, err := Collect(projectPath, c.logger)
	if err != nil {
		c.logger.Warn("Results collection incomplete: %v", err)
		out.ResultsErr = err
	} else {
		out.Results = results
	}
	return out, nil
}

func (c *Client) stream(ctx context.Context, cmd []string) (execpkg.Result, error) {
	w, flush := echoWriter(c.echo)
	defer flush()
	return c.executor.Run(ctx, cmd, &execpkg.Opts{Stream: w})
}

// ParseProjectPath finds the project the engine created and maps its
// container path under outputDir.
func ParseProjectPath(output, outputDir string) (string, bool) {
	m := projectPathPattern.FindStringSubmatch(StripANSI(output))
	if m == nil {
		return "", false
	}
	return MapVirtualPath(m[1], outputDir), true
}

// MapVirtualPath replaces the container mount prefix with outputDir. Other
// paths are returned unchanged.
func MapVirtualPath(path, outputDir string) string {
	rel, ok := strings.CutPrefix(path, virtualRoot)
	if !ok {
		return path
	}
	if outputDir == "" {
		outputDir = config.DefaultOutputDir
	}
	return filepath.Join(outputDir, strings.TrimPrefix(rel, "/"))
}
