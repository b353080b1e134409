package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "model",
			Name:      "requests_total",
			Help:      "Total number of model requests",
		},
		[]string{"model", "mode"}, // mode: "stream" or "complete"
	)

	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "model",
			Name:      "request_errors_total",
			Help:      "Total number of failed model requests",
		},
		[]string{"model", "kind"},
	)

	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agenticos",
			Subsystem: "model",
			Name:      "request_latency_seconds",
			Help:      "Model request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
		},
		[]string{"model", "mode"},
	)

	// Retry metrics
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"model", "reason"},
	)

	RetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "retry",
			Name:      "exhausted_total",
			Help:      "Total number of requests that exhausted all retries",
		},
		[]string{"model"},
	)

	// Stream metrics
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agenticos",
			Subsystem: "stream",
			Name:      "active",
			Help:      "Number of currently active response streams",
		},
	)

	StreamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Total number of stream chunks emitted",
		},
		[]string{"model", "kind"}, // kind: "content", "reasoning", "tool_call"
	)

	StreamBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "Total bytes of streamed text emitted",
		},
		[]string{"model", "kind"},
	)

	StreamForcedFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "stream",
			Name:      "forced_flushes_total",
			Help:      "Total number of oversized-buffer flushes",
		},
		[]string{"model"},
	)

	StreamFragmentsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "stream",
			Name:      "fragments_discarded_total",
			Help:      "Total number of trailing tag fragments discarded at stream end",
		},
		[]string{"model"},
	)

	// Budget metrics
	BudgetComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "budget",
			Name:      "computations_total",
			Help:      "Total number of token budget computations",
		},
		[]string{"model"},
	)

	BudgetClamps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "budget",
			Name:      "clamps_total",
			Help:      "Total number of requests whose token budget was clamped",
		},
		[]string{"model", "reason"}, // "request_above_available", "input_exceeds_context"
	)

	EstimatedInputTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agenticos",
			Subsystem: "budget",
			Name:      "input_tokens",
			Help:      "Estimated input token counts per request",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 10), // 256 to ~128k
		},
		[]string{"model"},
	)

	// Thinking metrics
	ThinkingSegments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "thinking",
			Name:      "segments_total",
			Help:      "Total number of reasoning segments extracted",
		},
		[]string{"model"},
	)

	ThinkingTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "thinking",
			Name:      "tokens_total",
			Help:      "Approximate reasoning tokens extracted",
		},
		[]string{"model"},
	)

	// Tool call metrics
	ToolCallsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "tools",
			Name:      "calls_extracted_total",
			Help:      "Total number of tool calls extracted from model output",
		},
		[]string{"model"},
	)

	ToolCallsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "tools",
			Name:      "calls_skipped_total",
			Help:      "Total number of tool call blocks skipped as malformed",
		},
		[]string{"reason"}, // "empty_name", "unpaired_args", "unserializable_args"
	)

	// Circuit breaker metrics
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state changes",
		},
		[]string{"name", "from_state", "to_state"},
	)

	CircuitBreakerExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenticos",
			Subsystem: "circuit_breaker",
			Name:      "executions_total",
			Help:      "Total number of circuit breaker executions",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)
