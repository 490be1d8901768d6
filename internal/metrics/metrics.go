package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level registry so the exposition endpoint and tests see exactly the
// collectors below, nothing inherited from the global default.
var (
	registry = prometheus.NewRegistry()

	rulesEvaluated = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "automation_rules_evaluated_total",
		Help: "Automation rules considered per trigger type",
	}, []string{"trigger"})

	rulesMatched = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "automation_rules_matched_total",
		Help: "Automation rules whose condition matched per trigger type",
	}, []string{"trigger"})

	actionsExecuted = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "automation_actions_total",
		Help: "Automation actions by type and outcome",
	}, []string{"action", "status"})

	automationDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "automation_pass_duration_seconds",
		Help:    "Time spent evaluating all rules for one trigger event",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})

	rateLimitDrops = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_drops_total",
		Help: "Requests rejected with HTTP 429 per route prefix",
	}, []string{"prefix"})

	llmRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "LLM calls by outcome",
	}, []string{"status"})
)

// IncRuleEvaluated counts one rule considered for a trigger event.
func IncRuleEvaluated(trigger string) {
	rulesEvaluated.WithLabelValues(trigger).Inc()
}

// IncRuleMatched counts one rule whose condition held.
func IncRuleMatched(trigger string) {
	rulesMatched.WithLabelValues(trigger).Inc()
}

// IncActionExecuted counts one action attempt; status is "executed" or
// "failed".
func IncActionExecuted(action, status string) {
	actionsExecuted.WithLabelValues(action, status).Inc()
}

// ObserveAutomationPass records how long a full rule pass took.
func ObserveAutomationPass(trigger string, d time.Duration) {
	automationDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	rateLimitDrops.WithLabelValues(prefix).Inc()
}

// IncLLMRequest counts one model call; status is "ok", "error" or "fallback".
func IncLLMRequest(status string) {
	llmRequests.WithLabelValues(status).Inc()
}

// Handler exposes the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, used by tests to gather metric
// families directly.
func Registry() *prometheus.Registry {
	return registry
}
