package tools

import "tinker/pkg/plan"

// Tool name constants - use these instead of magic strings.
const (
	// Environment tools.
	ToolAddPlaceholder     = plan.PlaceholderTool
	ToolSetDiscoveredValue = "set_discovered_value"
	ToolRemoveVariable     = "remove_variable"

	// Device model tools.
	ToolAddDeviceModel    = "add_device_model"
	ToolRemoveDeviceModel = "remove_device_model"
	ToolSetReadBehavior   = "set_read_behavior"

	// Diagnostic tools.
	ToolGrepConsoleLog     = "grep_console_log"
	ToolReplaceScriptExit0 = "replace_script_exit0"
)

// Sentinel is the value the engine instruments to discover what a guest
// compares an environment variable against.
const Sentinel = "DYNVALDYNVALDYNVAL"

// ReservedEnvVar is managed by the engine and never edited by tools.
const ReservedEnvVar = "igloo_init"

// Read models accepted by set_read_behavior.
const (
	ReadModelReturnZero = "return_zero"
	ReadModelConstBuf   = "const_buf"
)

// Config sections the tools edit.
const (
	sectionEnv         = "env"
	sectionPseudofiles = "pseudofiles"
)

// Allowed pseudofile roots.
var pseudofileRoots = []string{"/sys/", "/dev/", "/proc/"}
