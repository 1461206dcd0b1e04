package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// LocalExec executes commands directly on the local system.
type LocalExec struct{}

// NewLocalExec creates a new LocalExec executor.
func NewLocalExec() *LocalExec {
	return &LocalExec{}
}

// Name returns the executor type name.
func (e *LocalExec) Name() ExecutorType {
	return ExecutorTypeLocal
}

// Run executes a command locally with the given options.
func (e *LocalExec) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}
	if opts == nil {
		opts = &Opts{}
	}

	startTime := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); os.IsNotExist(err) {
			return Result{}, fmt.Errorf("working directory does not exist: %s", opts.WorkDir)
		}
		execCmd.Dir = opts.WorkDir
	}

	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	var (
		result Result
		err    error
	)
	if opts.Stream != nil {
		result.Output, result.ExitCode, err = e.streamCommand(execCmd, opts.Stream)
	} else {
		result.Stdout, result.Stderr, result.ExitCode, err = e.executeCommand(execCmd)
	}
	result.Duration = time.Since(startTime)
	result.ExecutorUsed = e.Name()

	return result, err
}

// executeCommand runs the command and captures output.
func (e *LocalExec) executeCommand(cmd *exec.Cmd) (stdout, stderr string, exitCode int, err error) {
	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	exitCode, err = exitStatus(err)
	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

// streamCommand merges stdout and stderr into one pipe that a separate
// goroutine drains into w and a capture buffer while the process runs.
func (e *LocalExec) streamCommand(cmd *exec.Cmd, w io.Writer) (string, int, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return "", -1, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return "", -1, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	var (
		captured bytes.Buffer
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer pr.Close()
		_, _ = io.Copy(io.MultiWriter(&captured, &lenientWriter{w: w}), pr)
	}()

	waitErr := cmd.Wait()
	wg.Wait()

	exitCode, err := exitStatus(waitErr)
	return captured.String(), exitCode, err
}

// lenientWriter stops forwarding after the first write error so a broken
// echo target never blocks the drain.
type lenientWriter struct {
	w      io.Writer
	failed bool
}

func (l *lenientWriter) Write(p []byte) (int, error) {
	if !l.failed {
		if _, err := l.w.Write(p); err != nil {
			l.failed = true
		}
	}
	return len(p), nil
}

// exitStatus converts a Run/Wait error into an exit code. Non-zero exits are
// not errors; failures to start are reported with exit code -1.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
