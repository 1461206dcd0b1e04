package penguin

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tinker/pkg/knowledge"
	"tinker/pkg/logx"
	"tinker/pkg/utils"
)

// Artifact file names.
const (
	ConsoleLog          = "console.log"
	EnvMissing          = "env_missing.yaml"
	PseudofilesFailures = "pseudofiles_failures.yaml"
	PseudofilesModeled  = "pseudofiles_modeled.yaml"
	Netbinds            = "netbinds.csv"
	EnvCmp              = "env_cmp.txt"
)

// Files smaller than this are reported as empty.
const minArtifactSize = 3

const maxConsoleErrorLines = 20

var consoleErrorKeywords = []string{"error", "failed", "exception", "traceback"}

type artifactFormat int

const (
	formatText artifactFormat = iota
	formatYAML
	formatCSV
)

type artifactSpec struct {
	name     string
	format   artifactFormat
	critical bool
}

// Collected in this order.
var artifactSpecs = []artifactSpec{
	{ConsoleLog, formatText, true},
	{EnvMissing, formatYAML, false},
	{PseudofilesFailures, formatYAML, false},
	{PseudofilesModeled, formatYAML, false},
	{Netbinds, formatCSV, false},
	{EnvCmp, formatText, false},
}

// Artifact is one result file.
type Artifact struct {
	Name    string
	Present bool
	Empty   bool
	// Content is the raw text, or "<name> is empty".
	Content string
	// Parsed holds decoded YAML or CSV rows; nil for text files and on
	// parse failure.
	Parsed any
}

// Stat is a named count from the results.
type Stat struct {
	Key   string
	Value int
}

// Results are the artifacts of one engine run.
type Results struct {
	RunNumber int
	Dir       string
	Artifacts []Artifact
	Stats     []Stat
}

// Collect reads the newest results/<n> directory of a project.
func Collect(projectPath string, logger *logx.Logger) (*Results, error) {
	if logger == nil {
		logger = logx.Nop()
	}
	dir, run, err := utils.LatestResultsDir(projectPath)
	if err != nil {
		return nil, err
	}
	logger.Printf("\n[Results] Collecting from: %s", dir)

	r := &Results{RunNumber: run, Dir: dir}
	for _, spec := range artifactSpecs {
		r.Artifacts = append(r.Artifacts, readArtifact(dir, spec, logger))
	}
	r.Stats = r.statistics()
	return r, nil
}

func readArtifact(dir string, spec artifactSpec, logger *logx.Logger) Artifact {
	a := Artifact{Name: spec.name}
	path := filepath.Join(dir, spec.name)
	info, err := os.Stat(path)
	if err != nil {
		if spec.critical {
			logger.Warn("Critical file missing: %s", spec.name)
		}
		return a
	}
	a.Present = true
	if info.Size() < minArtifactSize {
		a.Empty = true
		a.Content = spec.name + " is empty"
		return a
	}

	data, err := os.ReadFile(path)
	if err != nil {
		a.Content = fmt.Sprintf("Error reading file: %v", err)
		return a
	}
	a.Content = string(data)

	switch spec.format {
	case formatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			logger.Warn("Failed to parse %s: %v", spec.name, err)
		} else if v == nil {
			a.Parsed = map[string]any{}
		} else {
			a.Parsed = v
		}
	case formatCSV:
		rows, err := parseCSV(a.Content)
		if err != nil {
			logger.Warn("Failed to parse %s: %v", spec.name, err)
		} else {
			a.Parsed = rows
		}
	}
	return a
}

// parseCSV returns one map per data row keyed by the header.
func parseCSV(content string) ([]map[string]string, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	rows := []map[string]string{}
	if len(records) == 0 {
		return rows, nil
	}
	header := records[0]
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(rec) {
				row[key] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Artifact returns the named artifact.
func (r *Results) Artifact(name string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// FilesCollected counts artifacts that were present.
func (r *Results) FilesCollected() int {
	n := 0
	for _, a := range r.Artifacts {
		if a.Present {
			n++
		}
	}
	return n
}

// FilesMissing counts artifacts that were absent.
func (r *Results) FilesMissing() int {
	return len(r.Artifacts) - r.FilesCollected()
}

// entries is the size of a parsed artifact: the length of a list or map,
// -1 when it is absent, empty or a scalar.
func (r *Results) entries(name string) int {
	a, ok := r.Artifact(name)
	if !ok {
		return -1
	}
	switch v := a.Parsed.(type) {
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	case []map[string]string:
		return len(v)
	case nil:
		return -1
	default:
		return 0
	}
}

func (r *Results) statistics() []Stat {
	var stats []Stat
	for _, s := range []struct{ key, file string }{
		{"env_missing_count", EnvMissing},
		{"pseudofile_failures", PseudofilesFailures},
		{"pseudofiles_modeled", PseudofilesModeled},
		{"network_bindings", Netbinds},
	} {
		if n := r.entries(s.file); n > 0 {
			stats = append(stats, Stat{Key: s.key, Value: n})
		}
	}
	return stats
}

// Errors lists the problems visible in the results: console lines mentioning
// a failure, and counts of missing variables and pseudofile failures.
func (r *Results) Errors() []string {
	var errs []string
	if console, ok := r.Artifact(ConsoleLog); ok && console.Present && !console.Empty {
		var lines []string
		for _, line := range strings.Split(console.Content, "\n") {
			lower := strings.ToLower(line)
			for _, kw := range consoleErrorKeywords {
				if strings.Contains(lower, kw) {
					lines = append(lines, line)
					break
				}
			}
			if len(lines) == maxConsoleErrorLines {
				break
			}
		}
		if len(lines) > 0 {
			errs = append(errs, "Console errors:\n"+strings.Join(lines, "\n"))
		}
	}
	if n := r.entries(EnvMissing); n > 0 {
		errs = append(errs, fmt.Sprintf("Missing environment variables: %d", n))
	}
	if n := r.entries(PseudofilesFailures); n > 0 {
		errs = append(errs, fmt.Sprintf("Pseudofile failures: %d", n))
	}
	if len(errs) == 0 {
		return []string{"No errors found"}
	}
	return errs
}

// Facts derives the knowledge base inputs from the results.
func (r *Results) Facts() knowledge.Facts {
	var f knowledge.Facts
	if r == nil {
		return f
	}
	f.EnvMissing = r.entries(EnvMissing) > 0
	f.PseudofileFailures = r.entries(PseudofilesFailures) > 0
	if a, ok := r.Artifact(EnvCmp); ok && a.Present && !a.Empty {
		f.EnvCandidates = strings.TrimSpace(a.Content) != ""
	}
	return f
}

// Summary renders the penguin_results context entry.
func (r *Results) Summary() string {
	parts := []string{
		fmt.Sprintf("Run #%d", r.RunNumber),
		"Results directory: " + r.Dir,
		fmt.Sprintf("Files collected: %d", r.FilesCollected()),
		fmt.Sprintf("Files missing: %d", r.FilesMissing()),
	}
	if len(r.Stats) > 0 {
		parts = append(parts, "\nStatistics:")
		for _, s := range r.Stats {
			parts = append(parts, fmt.Sprintf("  %s: %d", s.Key, s.Value))
		}
	}
	if errs := r.Errors(); errs[0] != "No errors found" {
		parts = append(parts, "\nErrors:")
		for _, e := range errs {
			parts = append(parts, "  - "+e)
		}
	}
	return strings.Join(parts, "\n")
}

// render formats an artifact for the planner: structured data as indented
// JSON, text as is.
func (a Artifact) render() string {
	if a.Parsed == nil {
		return a.Content
	}
	data, err := json.MarshalIndent(a.Parsed, "", "  ")
	if err != nil {
		return a.Content
	}
	return string(data)
}
