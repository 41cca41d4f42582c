// Package metrics provides Prometheus metrics for the seller tools service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequests counts marketplace GET attempts by outcome.
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meliseller",
			Name:      "gateway_requests_total",
			Help:      "Total number of marketplace API requests",
		},
		[]string{"outcome"},
	)

	// TokenRefreshes counts refresh grants by trigger (proactive, reactive, admin) and status.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meliseller",
			Name:      "token_refresh_total",
			Help:      "Total number of OAuth refresh attempts",
		},
		[]string{"trigger", "status"},
	)

	// TokenPersistFailures counts write-through failures to the token store.
	TokenPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meliseller",
			Name:      "token_persist_failures_total",
			Help:      "Total number of failed token store writes",
		},
	)

	// ToolCalls counts tool invocations.
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meliseller",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)

	// DigestRuns counts digest dispatch attempts.
	DigestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meliseller",
			Name:      "digest_runs_total",
			Help:      "Total number of digest runs",
		},
		[]string{"status"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRefresh records one refresh attempt.
func RecordRefresh(trigger string, err error) {
	TokenRefreshes.WithLabelValues(trigger, status(err)).Inc()
}

// RecordToolCall records one tool call.
func RecordToolCall(tool string, err error) {
	ToolCalls.WithLabelValues(tool, status(err)).Inc()
}

// RecordDigest records one digest run.
func RecordDigest(err error) {
	DigestRuns.WithLabelValues(status(err)).Inc()
}
