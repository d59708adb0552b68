package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM request performance and response times
//   - Tool execution patterns and latencies
//   - MECH driver loop behavior (thought delay, metacognition cadence)
//   - Model fallback and circuit-breaker events
//   - Error rates categorized by type and component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic|openai), model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider (anthropic|openai), model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (history|toolsys|runner|driver|metacog), error_type
	ErrorCounter *prometheus.CounterVec

	// ThoughtDelaySeconds measures the actual interruptible sleep duration
	// between MECH driver iterations.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	ThoughtDelaySeconds *prometheus.HistogramVec

	// MetacognitionRuns counts metacognition turns by outcome
	// (no_changes|thought_injected|tuned|error).
	MetacognitionRuns *prometheus.CounterVec

	// ModelFallbacks counts model/provider fallback transitions.
	// Labels: from_model, to_model, reason (rate_limit|error|timeout)
	ModelFallbacks *prometheus.CounterVec

	// ActiveDrivers is a gauge tracking currently running MECH driver loops.
	ActiveDrivers prometheus.Gauge

	// RunAttempts counts run attempts (for retry tracking).
	// Labels: status (success|retry|failed)
	RunAttempts *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mech_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mech_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ThoughtDelaySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mech_thought_delay_seconds",
				Help:    "Actual duration of the interruptible thought-delay sleep between MECH iterations",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"agent_id"},
		),

		MetacognitionRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_metacognition_runs_total",
				Help: "Total number of metacognition turns by outcome",
			},
			[]string{"outcome"},
		),

		ModelFallbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_model_fallbacks_total",
				Help: "Total number of model/provider fallback transitions",
			},
			[]string{"from_model", "to_model", "reason"},
		),

		ActiveDrivers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mech_active_drivers",
				Help: "Current number of running MECH driver loops",
			},
		),

		RunAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mech_run_attempts_total",
				Help: "Total number of run attempts by status",
			},
			[]string{"status"},
		),
	}
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMCost records estimated API cost.
//
// Example:
//
//	metrics.RecordLLMCost("anthropic", "claude-3-opus", 0.015)
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("web_search", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("runner", "inactivity_timeout")
//	metrics.RecordError("toolsys", "argument_error")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordThoughtDelay records the actual duration of a thought-delay sleep.
//
// Example:
//
//	metrics.RecordThoughtDelay("agent-1", 30.0)
func (m *Metrics) RecordThoughtDelay(agentID string, durationSeconds float64) {
	m.ThoughtDelaySeconds.WithLabelValues(agentID).Observe(durationSeconds)
}

// RecordMetacognitionRun records completion of a metacognition turn.
//
// Example:
//
//	metrics.RecordMetacognitionRun("thought_injected")
func (m *Metrics) RecordMetacognitionRun(outcome string) {
	m.MetacognitionRuns.WithLabelValues(outcome).Inc()
}

// RecordModelFallback records a model/provider fallback transition.
//
// Example:
//
//	metrics.RecordModelFallback("gpt-4o", "claude-3-opus", "rate_limit")
func (m *Metrics) RecordModelFallback(fromModel, toModel, reason string) {
	m.ModelFallbacks.WithLabelValues(fromModel, toModel, reason).Inc()
}

// DriverStarted increments the active drivers gauge.
func (m *Metrics) DriverStarted() {
	m.ActiveDrivers.Inc()
}

// DriverStopped decrements the active drivers gauge.
func (m *Metrics) DriverStopped() {
	m.ActiveDrivers.Dec()
}

// RecordRunAttempt records a run attempt.
//
// Example:
//
//	metrics.RecordRunAttempt("success")
//	metrics.RecordRunAttempt("retry")
//	metrics.RecordRunAttempt("failed")
func (m *Metrics) RecordRunAttempt(status string) {
	m.RunAttempts.WithLabelValues(status).Inc()
}
