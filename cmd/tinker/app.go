package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tinker/pkg/agent"
	"tinker/pkg/agent/llm"
	llmmetrics "tinker/pkg/agent/middleware/metrics"
	"tinker/pkg/config"
	"tinker/pkg/logx"
	"tinker/pkg/penguin"
	"tinker/pkg/version"
)

// App is the tinker command line.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	// Overridable collaborators of the run command.
	newEngine func(cfg config.Penguin, logger *logx.Logger) penguin.Engine
	newClient func(ctx context.Context, cfg config.LLM, rec llmmetrics.Recorder, logger *logx.Logger) (llm.LLMClient, error)
}

// NewApp builds the command tree.
func NewApp() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	app.newEngine = func(cfg config.Penguin, logger *logx.Logger) penguin.Engine {
		return penguin.NewClient(cfg, penguin.WithLogger(logger))
	}
	app.newClient = agent.NewClient

	app.root = &cobra.Command{
		Use:   "tinker",
		Short: "LLM-guided firmware rehosting configuration repair",
		Long: `tinker drives the penguin rehosting engine for a fixed number of rounds.
Each round runs the firmware, asks the model for a prioritized plan of
configuration fixes, applies them to the project's config.yaml and feeds the
outcome into the next round.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.AddCommand(
		app.newRunCmd(),
		app.newHistoryCmd(),
		app.newVersionCmd(),
	)
	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the command line until completion or SIGINT/SIGTERM.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the command line with explicit arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(a.stdout, version.String())
		},
	}
}
