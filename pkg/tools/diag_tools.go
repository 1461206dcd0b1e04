package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	execpkg "tinker/pkg/exec"
	"tinker/pkg/plan"
	"tinker/pkg/utils"
)

const (
	grepTimeout     = 30 * time.Second
	maxGrepOutput   = 8000
	exit0ScriptBody = "#!/bin/sh\nexit 0\n"
)

// grepConsoleLogTool searches the latest run's console.log. It does not touch
// the configuration document.
type grepConsoleLogTool struct{ r *Registry }

func (t *grepConsoleLogTool) Name() string { return ToolGrepConsoleLog }

func (t *grepConsoleLogTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolGrepConsoleLog,
		Description: "Search the latest console.log with grep",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"grep_command": {Type: "string", Description: "grep options and pattern, e.g. -n -i 'mtd'"},
				"reason":       reasonProperty(),
			},
			Required: []string{"grep_command", "reason"},
		},
	}
}

func (t *grepConsoleLogTool) PromptDocumentation() string {
	return `- **grep_console_log** - Search the latest console.log (read-only)
  - Parameters:
    - grep_command (string, REQUIRED): grep options and pattern without the file name
    - reason (string, REQUIRED): what you are looking for`
}

func (t *grepConsoleLogTool) Exec(ctx context.Context, args map[string]any) Result {
	command, _ := requireString(args, "grep_command")
	grepArgs, err := splitArgs(strings.TrimPrefix(command, "grep "))
	if err != nil {
		return failure("Invalid grep command: %v", err)
	}

	dir, _, err := utils.LatestResultsDir(t.r.projectPath)
	if err != nil {
		return failure("No results available: %v", err)
	}
	logPath := filepath.Join(dir, "console.log")
	if !utils.FileExists(logPath) {
		return failure("console.log not found in %s", dir)
	}

	if len(grepArgs) == 0 {
		return failure("Invalid grep command: no pattern given")
	}
	cmd := append(append([]string{"grep"}, grepArgs...), logPath)
	res, err := t.r.executor.Run(ctx, cmd, &execpkg.Opts{Timeout: grepTimeout})
	if err != nil {
		return failure("grep failed: %v", err)
	}

	switch res.ExitCode {
	case 0:
		out := plan.Truncate(res.Stdout, maxGrepOutput)
		return success(map[string]any{"matches": out}, "grep output:\n%s", out)
	case 1:
		return success(nil, "No matches found")
	default:
		return failure("grep exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
}

// splitArgs splits a command line into words, honoring single and double
// quotes and backslash escapes outside single quotes.
func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, c := range s {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inWord = true
		case c == ' ' || c == '\t' || c == '\n':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}

// replaceScriptTool overwrites a guest script with one that exits 0.
type replaceScriptTool struct{ r *Registry }

func (t *replaceScriptTool) Name() string { return ToolReplaceScriptExit0 }

func (t *replaceScriptTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReplaceScriptExit0,
		Description: "Replace a script in the project directory with one that exits 0",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"script_path": {Type: "string", Description: "Script path relative to the project directory"},
				"reason":      reasonProperty(),
			},
			Required: []string{"script_path", "reason"},
		},
	}
}

func (t *replaceScriptTool) PromptDocumentation() string {
	return `- **replace_script_exit0** - Replace a script with "exit 0"
  - Parameters:
    - script_path (string, REQUIRED): path relative to the project directory
    - reason (string, REQUIRED): why the script blocks boot`
}

func (t *replaceScriptTool) Exec(_ context.Context, args map[string]any) Result {
	rel, _ := requireString(args, "script_path")
	target, err := projectFile(t.r.projectPath, rel)
	if err != nil {
		return failure("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failure("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(target, []byte(exit0ScriptBody), 0o755); err != nil {
		return failure("Failed to write %s: %v", rel, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(target, 0o755); err != nil {
		return failure("Failed to chmod %s: %v", rel, err)
	}
	return success(map[string]any{"file": target}, "Replaced %s with exit 0 script", rel)
}

// projectFile resolves rel inside projectPath, rejecting escapes.
func projectFile(projectPath, rel string) (string, error) {
	if projectPath == "" {
		return "", fmt.Errorf("project path is not set")
	}
	clean := filepath.Clean(strings.TrimPrefix(rel, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("script path %s escapes the project directory", rel)
	}
	return filepath.Join(projectPath, clean), nil
}
