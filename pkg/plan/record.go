package plan

// PlaceholderTool is the mutation that writes the discovery sentinel. At most
// one successful call is allowed per discovery window.
const PlaceholderTool = "add_placeholder_variable"

// Status is the outcome of an executed option.
type Status string

// Option outcomes.
const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// CallOutcome is the result of one tool call inside an option.
type CallOutcome struct {
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"params,omitempty"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
}

// ActionRecord is the execution result for one option. Tool and Input are
// taken from the first resolved call.
type ActionRecord struct {
	StepID    string         `json:"step_id"`
	Round     int            `json:"round"`
	OptionID  string         `json:"option_id"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input"`
	OutputURI string         `json:"output_uri"`
	Summary   string         `json:"summary"`
	Status    Status         `json:"status"`
	Calls     []CallOutcome  `json:"calls,omitempty"`
}

// SuccessfulPlaceholder returns the variable name of the first successful
// placeholder call in records.
func SuccessfulPlaceholder(records []ActionRecord) (string, bool) {
	for _, r := range records {
		if len(r.Calls) == 0 {
			if r.Tool == PlaceholderTool && r.Status == StatusSuccess {
				name, _ := r.Input["name"].(string)
				return name, true
			}
			continue
		}
		for _, c := range r.Calls {
			if c.Tool == PlaceholderTool && c.Success {
				name, _ := c.Params["name"].(string)
				return name, true
			}
		}
	}
	return "", false
}

// History is the append-only action log of a run.
type History struct {
	records     []ActionRecord
	windowStart int // first record after the last resolved discovery
}

// Append adds records in order.
func (h *History) Append(records ...ActionRecord) {
	h.records = append(h.records, records...)
}

// Len is the number of records.
func (h *History) Len() int {
	return len(h.records)
}

// Records returns a copy of every record.
func (h *History) Records() []ActionRecord {
	out := make([]ActionRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Since returns a copy of the records appended at or after index i.
func (h *History) Since(i int) []ActionRecord {
	if i < 0 {
		i = 0
	}
	if i >= len(h.records) {
		return nil
	}
	out := make([]ActionRecord, len(h.records)-i)
	copy(out, h.records[i:])
	return out
}

// Last returns up to n most recent records.
func (h *History) Last(n int) []ActionRecord {
	return h.Since(len(h.records) - n)
}

// ActivePlaceholder reports a successful placeholder call within the current
// discovery window.
func (h *History) ActivePlaceholder() (string, bool) {
	return SuccessfulPlaceholder(h.records[h.windowStart:])
}

// MarkDiscoveryResolved closes the current window so a new placeholder may be
// added.
func (h *History) MarkDiscoveryResolved() {
	h.windowStart = len(h.records)
}
