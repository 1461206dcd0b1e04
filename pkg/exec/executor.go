// Package exec runs external commands for the engine client and the
// diagnostic tools.
package exec

import (
	"context"
	"io"
	"time"
)

// ExecutorType names an executor implementation.
type ExecutorType string

// ExecutorTypeLocal runs commands on the host.
const ExecutorTypeLocal ExecutorType = "local"

// Executor runs a command to completion.
type Executor interface {
	// Run executes cmd and returns its result. A non-zero exit status is
	// reported in Result.ExitCode, not as an error.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor type for logging.
	Name() ExecutorType
}

// Opts contains options for command execution.
type Opts struct {
	// Env entries (KEY=VALUE) added to the current environment.
	Env []string

	// Timeout bounds execution; zero means no limit.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string

	// Stream, when set, receives the combined stdout/stderr as it is
	// produced. The combined text is also returned in Result.Output.
	Stream io.Writer
}

// Result contains the outcome of a command.
type Result struct {
	Stdout       string
	Stderr       string
	Output       string // combined stream, set only in streaming mode
	ExecutorUsed ExecutorType
	Duration     time.Duration
	ExitCode     int
}

// Combined returns the streamed output or stdout followed by stderr.
func (r Result) Combined() string {
	if r.Output != "" {
		return r.Output
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + r.Stderr
}
