// Package knowledge maps observed rehosting symptoms to guidance for the
// planner and the engineer. The table is data, loaded from YAML; matching is
// by typed symptom, never by searching text.
package knowledge

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"tinker/pkg/plan"
)

//go:embed guidance.yaml
var defaultTable []byte

// Symptom is a structured fact derived from a round's results.
type Symptom string

// Known symptoms.
const (
	SymptomEnvMissing         Symptom = "env_missing"         // env_missing.yaml is non-empty
	SymptomEnvCandidates      Symptom = "env_candidates"      // env_cmp.txt is non-empty
	SymptomPseudofileFailures Symptom = "pseudofile_failures" // pseudofiles_failures.yaml is non-empty
	SymptomDiscoveryMode      Symptom = "discovery_mode"
)

// Facts are the inputs symptoms are derived from.
type Facts struct {
	EnvMissing         bool
	EnvCandidates      bool
	PseudofileFailures bool
	DiscoveryMode      bool
}

// Symptoms lists the symptoms present in f.
func (f Facts) Symptoms() []Symptom {
	var out []Symptom
	if f.EnvMissing {
		out = append(out, SymptomEnvMissing)
	}
	if f.EnvCandidates {
		out = append(out, SymptomEnvCandidates)
	}
	if f.PseudofileFailures {
		out = append(out, SymptomPseudofileFailures)
	}
	if f.DiscoveryMode {
		out = append(out, SymptomDiscoveryMode)
	}
	return out
}

// PlannerView is the strategic side of a guidance entry.
type PlannerView struct {
	Priority          plan.Priority `yaml:"priority"`
	Impact            string        `yaml:"impact"`
	Description       string        `yaml:"description"`
	NextSteps         string        `yaml:"next_steps"`
	RequiresRerun     bool          `yaml:"requires_rerun"`
	SelectionCriteria string        `yaml:"selection_criteria"`
}

// Example is a sample tool call.
type Example struct {
	Tool   string         `yaml:"tool" json:"tool"`
	Params map[string]any `yaml:"params" json:"params"`
}

// EngineerView is the tactical side of a guidance entry.
type EngineerView struct {
	Tool     string    `yaml:"tool"`
	Examples []Example `yaml:"examples"`
	Notes    []string  `yaml:"notes"`
}

// Guidance is one documented issue and how to handle it.
type Guidance struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Severity plan.Priority `yaml:"severity"`
	Symptoms []Symptom     `yaml:"symptoms"`
	Unless   []Symptom     `yaml:"unless"`
	Planner  PlannerView   `yaml:"planner"`
	Engineer EngineerView  `yaml:"engineer"`
}

// matches reports whether any trigger symptom is present and no excluding
// symptom is.
func (g Guidance) matches(present []Symptom) bool {
	for _, s := range g.Unless {
		if slices.Contains(present, s) {
			return false
		}
	}
	for _, s := range g.Symptoms {
		if slices.Contains(present, s) {
			return true
		}
	}
	return false
}

// Base is the lookup table. A nil *Base is valid and returns nothing, which
// is how a disabled knowledge base is represented.
type Base struct {
	entries []Guidance
}

// Load parses a YAML guidance table.
func Load(data []byte) (*Base, error) {
	var entries []Guidance
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse guidance table: %w", err)
	}
	seen := make(map[string]bool, len(entries))
	for i, g := range entries {
		if g.ID == "" {
			return nil, fmt.Errorf("guidance entry %d has no id", i)
		}
		if seen[g.ID] {
			return nil, fmt.Errorf("duplicate guidance id %q", g.ID)
		}
		seen[g.ID] = true
		if !g.Planner.Priority.Valid() {
			return nil, fmt.Errorf("guidance %q has invalid priority %q", g.ID, g.Planner.Priority)
		}
	}
	return &Base{entries: entries}, nil
}

// Default returns the built-in table.
func Default() *Base {
	b, err := Load(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded guidance table: %v", err))
	}
	return b
}

// IDs lists entry IDs in table order.
func (b *Base) IDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, len(b.entries))
	for _, g := range b.entries {
		ids = append(ids, g.ID)
	}
	return ids
}

// Lookup returns the entry with id.
func (b *Base) Lookup(id string) (Guidance, bool) {
	if b == nil {
		return Guidance{}, false
	}
	for _, g := range b.entries {
		if g.ID == id {
			return g, true
		}
	}
	return Guidance{}, false
}

// ForPlanner returns the entries selected by symptoms, in table order.
func (b *Base) ForPlanner(symptoms []Symptom) []Guidance {
	if b == nil || len(symptoms) == 0 {
		return nil
	}
	var out []Guidance
	for _, g := range b.entries {
		if g.matches(symptoms) {
			out = append(out, g)
		}
	}
	return out
}

// ForOption returns the entries relevant to an option, judged from its
// metadata and solution: a variable name selects the env entries (the
// candidate entry when the solution sets or removes a value), a device path
// selects the device entry.
func (b *Base) ForOption(opt plan.Option) []Guidance {
	if b == nil {
		return nil
	}
	var ids []string
	md := opt.Metadata
	if (md != nil && md.VariableName != "") || strings.HasPrefix(opt.Solution.Path, "env.") {
		switch opt.Solution.Action {
		case plan.ActionSetValue, plan.ActionRemoveVariable:
			ids = append(ids, "missing_env_var_found_candidates")
		default:
			ids = append(ids, "missing_env_var_unknown_value")
		}
	}
	if md != nil && md.DevicePath != "" {
		ids = append(ids, "missing_device_model")
	}

	var out []Guidance
	for _, id := range ids {
		if g, ok := b.Lookup(id); ok {
			out = append(out, g)
		}
	}
	return out
}

// Limits applied when guidance is rendered for the engineer.
const (
	MaxEngineerItems    = 3
	MaxEngineerExamples = 2
)

// FormatPlannerInsights renders the planner's "Knowledge Base Insights"
// section, or "" when there is nothing to say.
func FormatPlannerInsights(items []Guidance) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Knowledge Base Insights:\n")
	for _, g := range items {
		fmt.Fprintf(&sb, "- Issue: %s\n", g.Title)
		fmt.Fprintf(&sb, "  Severity: %s\n", g.Severity)
		fmt.Fprintf(&sb, "  Priority: %s\n", g.Planner.Priority)
		fmt.Fprintf(&sb, "  Impact: %s\n", g.Planner.Impact)
		fmt.Fprintf(&sb, "  Description: %s\n", g.Planner.Description)
		if g.Planner.RequiresRerun {
			next := g.Planner.NextSteps
			if next == "" {
				next = "Re-run needed"
			}
			fmt.Fprintf(&sb, "  ⚠️  Requires iteration: %s\n", next)
		}
		if g.Planner.SelectionCriteria != "" {
			fmt.Fprintf(&sb, "  Selection: %s\n", g.Planner.SelectionCriteria)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatEngineerGuidance renders up to MaxEngineerItems entries with at most
// MaxEngineerExamples examples each, or "" when items is empty.
func FormatEngineerGuidance(items []Guidance) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) > MaxEngineerItems {
		items = items[:MaxEngineerItems]
	}
	var sb strings.Builder
	sb.WriteString("Knowledge Base Guidance:\n")
	for i, g := range items {
		fmt.Fprintf(&sb, "\nGuidance %d - %s:\n", i+1, g.Title)
		fmt.Fprintf(&sb, "  Tool: %s\n", g.Engineer.Tool)
		examples := g.Engineer.Examples
		if len(examples) > MaxEngineerExamples {
			examples = examples[:MaxEngineerExamples]
		}
		if len(examples) > 0 {
			sb.WriteString("  Examples:\n")
			for j, ex := range examples {
				data, err := json.Marshal(ex)
				if err != nil {
					continue
				}
				fmt.Fprintf(&sb, "    Example %d: %s\n", j+1, data)
			}
		}
		if len(g.Engineer.Notes) > 0 {
			fmt.Fprintf(&sb, "  Notes: %s\n", strings.Join(g.Engineer.Notes, "; "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
