// Package metrics records per-request LLM usage: which caller (planner or
// engineer) asked, how long it took and how many tokens it cost.
package metrics

import "time"

// Recorder receives one observation per completed LLM request.
type Recorder interface {
	ObserveRequest(
		model, caller string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, int, int, bool, string, time.Duration) {}

// Nop discards every observation.
func Nop() Recorder { return nopRecorder{} }
