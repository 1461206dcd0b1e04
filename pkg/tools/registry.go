package tools

import (
	"context"
	"fmt"
	"strings"

	"tinker/pkg/configdoc"
	execpkg "tinker/pkg/exec"
	"tinker/pkg/logx"
	"tinker/pkg/plan"
)

// Options configures a Registry.
type Options struct {
	// Executor runs grep_console_log. Defaults to a local executor.
	Executor execpkg.Executor
	// ProjectPath is the engine project directory holding config.yaml and results/.
	ProjectPath string
	Logger      *logx.Logger
}

// Registry owns a round's configuration document and dispatches tool calls
// against it. It is not safe for concurrent use; rounds execute sequentially.
type Registry struct {
	doc         *configdoc.Document
	history     *plan.History
	executor    execpkg.Executor
	projectPath string
	logger      *logx.Logger

	tools map[string]Tool
	order []string

	// placeholder is the variable a successful placeholder call wrote during
	// this registry's lifetime.
	placeholder string
}

// NewRegistry creates a registry over doc. history is consulted for the
// cross-round placeholder safeguard and may be nil.
func NewRegistry(doc *configdoc.Document, history *plan.History, opts Options) *Registry {
	if opts.Executor == nil {
		opts.Executor = execpkg.NewLocalExec()
	}
	if opts.Logger == nil {
		opts.Logger = logx.Nop()
	}
	r := &Registry{
		doc:         doc,
		history:     history,
		executor:    opts.Executor,
		projectPath: opts.ProjectPath,
		logger:      opts.Logger,
		tools:       make(map[string]Tool),
	}
	r.register(
		&addPlaceholderTool{r},
		&setDiscoveredValueTool{r},
		&removeVariableTool{r},
		&addDeviceModelTool{r},
		&removeDeviceModelTool{r},
		&setReadBehaviorTool{r},
		&grepConsoleLogTool{r},
		&replaceScriptTool{r},
	)
	return r
}

func (r *Registry) register(tools ...Tool) {
	for _, t := range tools {
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
}

// Document returns the configuration document the registry mutates.
func (r *Registry) Document() *configdoc.Document { return r.doc }

// Has reports whether name is a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns every tool definition in registration order.
func (r *Registry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// PromptDocumentation renders every tool's documentation for the resolver prompt.
func (r *Registry) PromptDocumentation() string {
	docs := make([]string, 0, len(r.order))
	for _, name := range r.order {
		docs = append(docs, r.tools[name].PromptDocumentation())
	}
	return strings.Join(docs, "\n")
}

// Invoke runs one tool call. Unknown tools, missing parameters and invariant
// violations are reported as failed results.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) Result {
	t, ok := r.tools[name]
	if !ok {
		return failure("Unknown tool: %s", name)
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := checkRequired(t.Definition(), params); err != nil {
		return failure("%s: %v", name, err)
	}

	res := t.Exec(ctx, params)
	if res.OK() {
		r.logger.Info("🔧 %s: %s", name, res.Message)
	} else {
		r.logger.Warn("🔧 %s failed: %s", name, res.Message)
	}
	return res
}

// ActivePlaceholder reports a placeholder variable already added in the
// current discovery window, either by an earlier round or by this registry.
func (r *Registry) ActivePlaceholder() (string, bool) {
	if r.placeholder != "" {
		return r.placeholder, true
	}
	if r.history != nil {
		return r.history.ActivePlaceholder()
	}
	return "", false
}

// save persists the document. The in-memory tree keeps the mutation when the
// write fails.
func (r *Registry) save() error {
	if err := r.doc.Save(); err != nil {
		r.logger.Error("Failed to save config: %v", err)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func saveFailure(err error) Result {
	return failure("Failed to save config: %v", err)
}
