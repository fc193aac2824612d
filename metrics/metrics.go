// Package metrics exposes Prometheus instrumentation for the worker host.
// Counters are incremented from activity code only; workflow code stays
// deterministic and metric-free.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StateTransitions counts audited job state changes by new state.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iama_job_state_transitions_total",
		Help: "Audited refactor job state transitions by new state.",
	}, []string{"new_state"})

	// LLMStreamChunks counts gateway stream chunks by router model.
	LLMStreamChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iama_llm_stream_chunks_total",
		Help: "Stream chunks received from the LLM gateway by model.",
	}, []string{"model"})

	// TestRuns counts recorded test runs by run type and terminal status.
	TestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iama_test_runs_total",
		Help: "Recorded test runs by run type and terminal status.",
	}, []string{"run_type", "status"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
