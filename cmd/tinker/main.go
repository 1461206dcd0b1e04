// Command tinker repairs a firmware rehosting configuration with an LLM in
// the loop: each round runs the rehosting engine, plans fixes from its
// output and applies them to the project's config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	err := NewApp().Execute(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func failure(err error) error {
	return &exitError{code: exitFailure, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Anything cobra rejects before a command runs is a usage error.
	return exitUsage
}
