// Package metrics collects per-run workflow and LLM metrics on a private
// Prometheus registry and exports them as a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	llmmetrics "tinker/pkg/agent/middleware/metrics"
)

// Discovery transitions.
const (
	TransitionEntered = "entered"
	TransitionExited  = "exited"
)

// Round outcomes.
const (
	RoundCompleted = "completed"
	RoundFailed    = "failed"
)

// Workflow holds the metrics of one run. A nil *Workflow discards everything.
type Workflow struct {
	reg           *prometheus.Registry
	llm           *llmmetrics.PrometheusRecorder
	rounds        *prometheus.CounterVec
	options       *prometheus.CounterVec
	fallbacks     prometheus.Counter
	discovery     *prometheus.CounterVec
	roundDuration prometheus.Histogram
}

// New creates the workflow metrics and the LLM recorder on a fresh registry.
func New() *Workflow {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Workflow{
		reg: reg,
		llm: llmmetrics.NewPrometheusRecorder(reg),
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tinker_rounds_total",
			Help: "Rounds run, by outcome",
		}, []string{"outcome"}),
		options: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tinker_options_total",
			Help: "Executed plan options, by status",
		}, []string{"status"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tinker_plan_fallbacks_total",
			Help: "Plans replaced by the fallback plan",
		}),
		discovery: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tinker_discovery_transitions_total",
			Help: "Discovery mode transitions",
		}, []string{"transition"}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tinker_round_duration_seconds",
			Help:    "Wall time of one round including the engine run",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
		}),
	}
}

// Recorder returns the recorder for the LLM metrics middleware.
func (w *Workflow) Recorder() llmmetrics.Recorder {
	if w == nil {
		return llmmetrics.Nop()
	}
	return w.llm
}

// ObserveRound records a finished round.
func (w *Workflow) ObserveRound(outcome string, d time.Duration) {
	if w == nil {
		return
	}
	w.rounds.WithLabelValues(outcome).Inc()
	w.roundDuration.Observe(d.Seconds())
}

// ObserveOption records one executed option.
func (w *Workflow) ObserveOption(status string) {
	if w == nil {
		return
	}
	w.options.WithLabelValues(status).Inc()
}

// ObserveFallback records a fallback plan.
func (w *Workflow) ObserveFallback() {
	if w == nil {
		return
	}
	w.fallbacks.Inc()
}

// ObserveDiscovery records a discovery transition.
func (w *Workflow) ObserveDiscovery(transition string) {
	if w == nil {
		return
	}
	w.discovery.WithLabelValues(transition).Inc()
}

// Tokens is the cumulative LLM token usage.
type Tokens struct {
	Prompt     int64
	Completion int64
}

// Tokens sums tinker_llm_tokens_total across models and callers.
func (w *Workflow) Tokens() (Tokens, error) {
	var t Tokens
	if w == nil {
		return t, nil
	}
	families, err := w.reg.Gather()
	if err != nil {
		return t, fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if mf.GetName() != "tinker_llm_tokens_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			v := int64(m.GetCounter().GetValue())
			switch labelValue(m, "type") {
			case "prompt":
				t.Prompt += v
			case "completion":
				t.Completion += v
			}
		}
	}
	return t, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// WriteTextfile writes every metric in the text exposition format. The file
// is replaced atomically so a collector never reads a partial write.
func (w *Workflow) WriteTextfile(path string) error {
	if w == nil || path == "" {
		return nil
	}
	families, err := w.reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
