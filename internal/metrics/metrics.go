package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_started_total",
			Help: "Total number of research runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_completed_total",
			Help: "Total number of research runs that reached a terminal state",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_run_duration_seconds",
			Help:    "End-to-end research run duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)

	RetryDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_verification_retries",
			Help:    "Number of executor re-invocations triggered by verification",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_stage_duration_seconds",
			Help:    "Duration of each reasoning stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_stage_failures_total",
			Help: "Stage failures by stage and disposition (fatal, fail_open)",
		},
		[]string{"stage", "disposition"},
	)

	// Tool gateway metrics
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_tool_invocations_total",
			Help: "Tool gateway invocations by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_tool_call_duration_seconds",
			Help:    "Tool call duration in seconds, including retries",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// LLM client metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_llm_calls_total",
			Help: "LLM calls by outcome (ok, retry, malformed, exhausted)",
		},
		[]string{"outcome"},
	)

	LLMCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_llm_call_duration_seconds",
			Help:    "Single LLM call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)
