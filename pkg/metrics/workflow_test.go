package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowCounters(t *testing.T) {
	w := New()
	w.ObserveRound(RoundCompleted, 2*time.Minute)
	w.ObserveRound(RoundFailed, time.Minute)
	w.ObserveRound(RoundCompleted, time.Minute)
	w.ObserveOption("success")
	w.ObserveOption("failed")
	w.ObserveOption("success")
	w.ObserveFallback()
	w.ObserveDiscovery(TransitionEntered)

	assert.InDelta(t, 2, testutil.ToFloat64(w.rounds.WithLabelValues(RoundCompleted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(w.rounds.WithLabelValues(RoundFailed)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(w.options.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(w.fallbacks), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(w.discovery.WithLabelValues(TransitionEntered)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(w.roundDuration))
}

func TestTokensSumsAcrossCallers(t *testing.T) {
	w := New()
	rec := w.Recorder()
	rec.ObserveRequest("m", "planner", 100, 20, true, "", time.Second)
	rec.ObserveRequest("m", "engineer", 50, 5, true, "", time.Second)
	rec.ObserveRequest("m", "engineer", 999, 999, false, "timeout", time.Second)

	tokens, err := w.Tokens()
	require.NoError(t, err)
	assert.Equal(t, Tokens{Prompt: 150, Completion: 25}, tokens)
}

func TestWriteTextfile(t *testing.T) {
	w := New()
	w.ObserveOption("partial")
	w.Recorder().ObserveRequest("m", "planner", 10, 2, true, "", time.Second)

	path := filepath.Join(t.TempDir(), "textfile", "tinker.prom")
	require.NoError(t, w.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `tinker_options_total{status="partial"} 1`)
	assert.Contains(t, out, "# TYPE tinker_llm_requests_total counter")

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	assert.Empty(t, matches)
}

func TestNilWorkflow(t *testing.T) {
	var w *Workflow
	w.ObserveRound(RoundCompleted, time.Second)
	w.ObserveOption("success")
	w.ObserveFallback()
	w.ObserveDiscovery(TransitionExited)
	w.Recorder().ObserveRequest("m", "c", 1, 1, true, "", time.Second)

	tokens, err := w.Tokens()
	require.NoError(t, err)
	assert.Zero(t, tokens)
	assert.NoError(t, w.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
