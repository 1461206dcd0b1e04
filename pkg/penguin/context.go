package penguin

import (
	"fmt"
	"strings"

	"tinker/pkg/plan"
	"tinker/pkg/utils"
)

// Context source names other than artifact file names.
const (
	SourceMetadata           = "metadata"
	SourceInit               = "penguin_init"
	SourceRun                = "penguin_run"
	SourceResults            = "penguin_results"
	SourcePreviousIterations = "previous_iterations"
	SourceError              = "error"
)

const (
	previousActionsShown   = 5
	previousSummariesShown = 3
)

// RoundInput is what the assembler needs for one round.
type RoundInput struct {
	Firmware    string
	ProjectPath string
	Init        InitResult
	Run         RunResult
	// Round is zero-based; history is summarized from round 1 on.
	Round             int
	PreviousActions   []plan.ActionRecord
	PreviousSummaries []string
}

// Assembler turns engine output into ordered planner context.
type Assembler struct {
	counter       *utils.TokenCounter
	consoleBudget int
}

// NewAssembler creates an assembler. consoleBudget bounds console.log in
// tokens; 0 leaves it untruncated. counter may be nil.
func NewAssembler(counter *utils.TokenCounter, consoleBudget int) *Assembler {
	return &Assembler{counter: counter, consoleBudget: consoleBudget}
}

// Sources builds the round's context in a fixed order.
func (a *Assembler) Sources(in RoundInput) plan.Sources {
	src := plan.Sources{
		{Name: SourceMetadata, Content: fmt.Sprintf("Firmware: %s\nProject: %s", in.Firmware, in.ProjectPath)},
		{Name: SourceInit, Content: fmt.Sprintf("Exit code: %d\n\nOutput:\n%s", in.Init.ExitCode, in.Init.Output)},
		{Name: SourceRun, Content: fmt.Sprintf("Exit code: %d\n\nOutput:\n%s", in.Run.ExitCode, in.Run.Output)},
	}

	if res := in.Run.Results; res != nil {
		src = append(src, plan.Source{Name: SourceResults, Content: res.Summary()})
		for _, art := range res.Artifacts {
			if !art.Present {
				continue
			}
			content := art.render()
			if art.Name == ConsoleLog && !art.Empty && a.consoleBudget > 0 {
				content = a.counter.TruncateTailToTokenLimit(content, a.consoleBudget)
			}
			src = append(src, plan.Source{Name: art.Name, Content: content})
		}
	} else {
		msg := "Results directory not found"
		if in.Run.ResultsErr != nil {
			msg = in.Run.ResultsErr.Error()
		}
		src = append(src, plan.Source{Name: SourceError, Content: msg})
	}

	if in.Round > 0 {
		src = append(src, plan.Source{Name: SourcePreviousIterations, Content: previousIterations(in)})
	}
	return src
}

func previousIterations(in RoundInput) string {
	parts := []string{
		fmt.Sprintf("## Previous Iteration Context (Iteration %d):", in.Round),
		fmt.Sprintf("Total previous actions: %d", len(in.PreviousActions)),
		fmt.Sprintf("Total previous engineer summaries: %d", len(in.PreviousSummaries)),
	}
	if len(in.PreviousActions) > 0 {
		parts = append(parts, "\nPrevious Actions Summary:")
		actions := in.PreviousActions
		if len(actions) > previousActionsShown {
			actions = actions[len(actions)-previousActionsShown:]
		}
		for i, act := range actions {
			parts = append(parts, fmt.Sprintf("  %d. %s - %s - %s", i+1, act.Tool, act.Status, act.Summary))
		}
	}
	if len(in.PreviousSummaries) > 0 {
		parts = append(parts, "\nPrevious Engineer Summaries:")
		summaries := in.PreviousSummaries
		if len(summaries) > previousSummariesShown {
			summaries = summaries[len(summaries)-previousSummariesShown:]
		}
		for i, s := range summaries {
			parts = append(parts, fmt.Sprintf("  %d. %s", i+1, s))
		}
	}
	return strings.Join(parts, "\n")
}
