// Package metrics provides internal Prometheus instrumentation for the
// agent loop, tool dispatch and the memory tiers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates the framework's Prometheus metrics. Create one per
// process; promauto registers the collectors globally. Record methods are
// no-ops on a nil Collector, so instrumentation points need no guards.
type Collector struct {
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	runsTotal       *prometheus.CounterVec
	runIterations   prometheus.Histogram
	toolInvocations *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec

	memoryWrites    *prometheus.CounterVec
	memoryEvictions prometheus.Counter
	memorySearches  prometheus.Counter
}

// NewCollector registers and returns the framework metrics under the
// given namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{}

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of model invocations",
		},
		[]string{"provider", "model", "status"},
	)
	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Model invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)
	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total tokens consumed, by direction",
		},
		[]string{"provider", "model", "direction"},
	)

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Completed reasoning runs by outcome",
		},
		[]string{"outcome"},
	)
	c.runIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_run_iterations",
			Help:      "Iterations used per reasoning run",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)
	c.toolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)
	c.toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.memoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Memory records written by tier",
		},
		[]string{"tier"},
	)
	c.memoryEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_evictions_total",
			Help:      "Records evicted from the working tier",
		},
	)
	c.memorySearches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_searches_total",
			Help:      "Memory retrieval queries",
		},
	)

	return c
}

// RecordLLMRequest records one model invocation.
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordRun records one completed reasoning run.
func (c *Collector) RecordRun(outcome string, iterations int) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runIterations.Observe(float64(iterations))
}

// RecordToolInvocation records one tool dispatch.
func (c *Collector) RecordToolInvocation(tool, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.toolInvocations.WithLabelValues(tool, status).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordMemoryWrite records a write to the given tier.
func (c *Collector) RecordMemoryWrite(tier string) {
	if c == nil {
		return
	}
	c.memoryWrites.WithLabelValues(tier).Inc()
}

// RecordMemoryEviction records a working-tier eviction.
func (c *Collector) RecordMemoryEviction() {
	if c == nil {
		return
	}
	c.memoryEvictions.Inc()
}

// RecordMemorySearch records a retrieval query.
func (c *Collector) RecordMemorySearch() {
	if c == nil {
		return
	}
	c.memorySearches.Inc()
}
