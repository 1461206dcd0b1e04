package persistence

import "time"

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

// Run is one invocation of the workflow against a firmware image.
type Run struct {
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ID          string     `json:"id"`
	Firmware    string     `json:"firmware"`
	ProjectPath string     `json:"project_path"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	Status      string     `json:"status"`
	Errors      []string   `json:"errors"`
	MaxIter     int        `json:"max_iter"`
}

// Round is one plan/execute cycle of a run.
type Round struct {
	CreatedAt         time.Time `json:"created_at"`
	RunID             string    `json:"run_id"`
	PlanID            string    `json:"plan_id"`
	PlanJSON          string    `json:"plan_json,omitempty"`
	DiscoveryState    string    `json:"discovery_state"`
	DiscoveryVariable string    `json:"discovery_variable,omitempty"`
	ConfigDiff        string    `json:"config_diff,omitempty"`
	Error             string    `json:"error,omitempty"`
	Round             int       `json:"round"`
	Completed         int       `json:"completed"`
	Partial           int       `json:"partial"`
	Failed            int       `json:"failed"`
	Skipped           int       `json:"skipped"`
	PromptTokens      int64     `json:"prompt_tokens"`
	CompletionTokens  int64     `json:"completion_tokens"`
	Fallback          bool      `json:"fallback"`
}

// Action is a stored option execution.
type Action struct {
	CreatedAt time.Time      `json:"created_at"`
	Input     map[string]any `json:"input"`
	RunID     string         `json:"run_id"`
	StepID    string         `json:"step_id"`
	OptionID  string         `json:"option_id"`
	Tool      string         `json:"tool"`
	OutputURI string         `json:"output_uri"`
	Summary   string         `json:"summary"`
	Status    string         `json:"status"`
	CallsJSON string         `json:"calls_json,omitempty"`
	ID        int64          `json:"id"`
	Round     int            `json:"round"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
