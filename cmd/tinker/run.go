package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tinker/pkg/config"
	"tinker/pkg/eventlog"
	"tinker/pkg/logx"
	"tinker/pkg/metrics"
	"tinker/pkg/persistence"
	"tinker/pkg/utils"
	"tinker/pkg/workflow"
)

type runOptions struct {
	configPath string
	outputPath string
	verbose    bool
	model      string
	provider   string
	maxIter    int
	noHistory  bool
}

func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <firmware>",
		Short: "Rehost a firmware image",
		Long: `Initialize a penguin project for the firmware and run the repair loop.

Examples:
  # Five rounds with the settings in tinker.yaml
  tinker run firmware.bin

  # Three rounds with another model, keeping the final configuration
  tinker run -c lab.yaml --model qwen3:32b --max-iter 3 -o repaired.yaml firmware.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorkflow(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile, "Settings file")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Copy the final config.yaml to this path")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print prompts, raw responses and debug output")
	cmd.Flags().StringVar(&opts.model, "model", "", "LLM model (overrides settings)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "LLM provider: ollama, openai, anthropic or google")
	cmd.Flags().IntVar(&opts.maxIter, "max-iter", 0, "Number of rounds (overrides settings)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record the run in the history database")

	return cmd
}

// loadSettings reads the settings file and applies command line overrides.
func (opts *runOptions) loadSettings(logger *logx.Logger) (config.Config, error) {
	cfg, err := config.Load(opts.configPath, logger)
	if err != nil {
		return config.Config{}, err
	}
	if opts.model != "" {
		cfg.LLM.Model = opts.model
	}
	if opts.provider != "" && opts.provider != cfg.LLM.Provider {
		// The default host only makes sense for ollama.
		if cfg.LLM.Host == config.DefaultOllamaHost {
			cfg.LLM.Host = ""
		}
		cfg.LLM.Provider = opts.provider
	}
	if opts.maxIter > 0 {
		cfg.Penguin.MaxIter = opts.maxIter
	}
	if opts.verbose {
		cfg.General.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *App) runWorkflow(ctx context.Context, firmware string, opts *runOptions) error {
	bootLogger := logx.NewLogger("tinker", logx.WithWriter(a.stderr))
	cfg, err := opts.loadSettings(bootLogger)
	if err != nil {
		return failure(fmt.Errorf("input validation failed: %w", err))
	}

	logger := logx.NewLogger("workflow", logx.WithWriter(a.stdout), logx.WithVerbose(cfg.General.Verbose))

	counter, err := utils.NewTokenCounter()
	if err != nil {
		logger.Warn("Token counting unavailable, console.log will not be truncated: %v", err)
	}

	m := metrics.New()
	client, err := a.newClient(ctx, cfg.LLM, m.Recorder(), logger.Child("llm"))
	if err != nil {
		return failure(fmt.Errorf("LLM initialization failed: %w", err))
	}

	deps := workflow.Deps{
		Engine:  a.newEngine(cfg.Penguin, logger.Child("penguin")),
		Client:  client,
		Metrics: m,
		Counter: counter,
		Logger:  logger,
	}

	if !opts.noHistory {
		store, err := persistence.Open(cfg.HistoryDBPath())
		if err != nil {
			logger.Warn("History disabled: %v", err)
		} else {
			defer func() { _ = store.Close() }()
			deps.Store = store
		}
	}

	if dir := cfg.General.EventLogDir; dir != "" {
		events, err := eventlog.NewWriter(dir)
		if err != nil {
			logger.Warn("Event log disabled: %v", err)
		} else {
			defer func() { _ = events.Close() }()
			deps.Events = events
		}
	}

	w, err := workflow.New(cfg, deps)
	if err != nil {
		return failure(err)
	}

	// Round failures are in the summary; only validation and init end here.
	sum, err := w.Run(ctx, firmware)
	if err != nil {
		return failure(err)
	}

	if opts.outputPath != "" {
		if err := copyFile(sum.ConfigPath(), opts.outputPath); err != nil {
			logger.Warn("Failed to write output config: %v", err)
		} else {
			logger.Printf("📄 Final configuration written to %s", opts.outputPath)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	if src == "" {
		return errors.New("no project configuration")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
