package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tinker/pkg/config"
	"tinker/pkg/persistence"
)

type historyOptions struct {
	dbPath     string
	configPath string
	runID      string
	limit      int
}

func (a *App) newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or the rounds of one run",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.showHistory(opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "History database (default from settings)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile, "Settings file used to locate the database")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Show the rounds and actions of this run")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func (a *App) showHistory(opts *historyOptions) error {
	path := opts.dbPath
	if path == "" {
		cfg, err := config.Load(opts.configPath, nil)
		if err != nil {
			return failure(err)
		}
		path = cfg.HistoryDBPath()
	}

	store, err := persistence.Open(path)
	if err != nil {
		return failure(err)
	}
	defer func() { _ = store.Close() }()

	if opts.runID != "" {
		return a.showRun(store, opts.runID)
	}

	runs, err := store.ListRuns(opts.limit)
	if err != nil {
		return failure(err)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tMODEL\tMAX_ITER\tERRORS\tFIRMWARE")
	for _, run := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			run.ID, run.StartedAt.Local().Format(time.DateTime), run.Status, run.Model,
			run.MaxIter, len(run.Errors), run.Firmware)
	}
	return tw.Flush()
}

func (a *App) showRun(store *persistence.Store, runID string) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return failure(err)
	}
	rounds, err := store.ListRounds(runID)
	if err != nil {
		return failure(err)
	}
	actions, err := store.ListActions(runID)
	if err != nil {
		return failure(err)
	}

	_, _ = fmt.Fprintf(a.stdout, "Run %s (%s)\n", run.ID, run.Status)
	_, _ = fmt.Fprintf(a.stdout, "Firmware: %s\nProject: %s\nModel: %s/%s\n", run.Firmware, run.ProjectPath, run.Provider, run.Model)
	for _, e := range run.Errors {
		_, _ = fmt.Fprintf(a.stdout, "  ❌ %s\n", e)
	}

	byRound := make(map[int][]*persistence.Action)
	for _, act := range actions {
		byRound[act.Round] = append(byRound[act.Round], act)
	}
	for _, r := range rounds {
		writeRound(a.stdout, r, byRound[r.Round])
	}
	return nil
}

func writeRound(w io.Writer, r *persistence.Round, actions []*persistence.Action) {
	_, _ = fmt.Fprintf(w, "\nRound %d [%s", r.Round, r.DiscoveryState)
	if r.DiscoveryVariable != "" {
		_, _ = fmt.Fprintf(w, " %s", r.DiscoveryVariable)
	}
	_, _ = fmt.Fprintf(w, "] plan %s", r.PlanID)
	if r.Fallback {
		_, _ = fmt.Fprint(w, " (fallback)")
	}
	_, _ = fmt.Fprintf(w, ": %d completed, %d partial, %d failed, %d skipped, %d/%d tokens\n",
		r.Completed, r.Partial, r.Failed, r.Skipped, r.PromptTokens, r.CompletionTokens)
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
	for _, act := range actions {
		_, _ = fmt.Fprintf(w, "  %s %s %s: %s\n", act.StepID, act.Tool, act.Status, act.Summary)
	}
}
