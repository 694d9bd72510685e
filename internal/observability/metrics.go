package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the engine's prometheus metrics.
type Metrics struct {
	// RunCounter counts engine runs.
	// Labels: provider, model, status (success|failed|cancelled)
	RunCounter *prometheus.CounterVec

	// RunDuration measures whole-run latency in seconds.
	// Labels: provider, model
	RunDuration *prometheus.HistogramVec

	// TurnCounter counts turns across all runs.
	// Labels: provider, model
	TurnCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM calls.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CompressionCounter counts context compressions.
	// Labels: trigger (threshold|pre_compress)
	CompressionCounter *prometheus.CounterVec

	// ActiveRuns gauges in-flight runs.
	ActiveRuns prometheus.Gauge
}

// NewMetrics registers the engine metrics on the default registry.
func NewMetrics() *Metrics {
	return newMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on a caller-supplied registry (used by tests to
// avoid duplicate registration).
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetricsWith(reg)
}

func newMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_runs_total",
			Help: "Engine runs by provider, model and outcome.",
		}, []string{"provider", "model", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_run_duration_seconds",
			Help:    "Whole-run latency.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"provider", "model"}),
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_turns_total",
			Help: "Turns executed across all runs.",
		}, []string{"provider", "model"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_llm_request_duration_seconds",
			Help:    "LLM call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_llm_requests_total",
			Help: "LLM calls by outcome.",
		}, []string{"provider", "model", "status"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_llm_tokens_total",
			Help: "Token consumption by direction.",
		}, []string{"provider", "model", "type"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_tool_executions_total",
			Help: "Tool invocations by outcome.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_tool_execution_duration_seconds",
			Help:    "Tool execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"tool_name"}),
		CompressionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_context_compressions_total",
			Help: "Context compressions by trigger.",
		}, []string{"trigger"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loom_active_runs",
			Help: "In-flight engine runs.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
