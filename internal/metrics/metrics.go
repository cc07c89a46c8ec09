// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "designfeedback"
	subsystem = "billing"
)

var (
	// WebhookRequestsTotal counts provider webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "webhook_requests_total",
		Help:      "Total provider webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "webhook_duration_seconds",
		Help:      "Provider webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ReconcileOutcomes counts reconciler results per event kind.
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconcile_outcomes_total",
		Help:      "Webhook reconciler outcomes by event kind (applied, noop, duplicate, malformed, failed).",
	}, []string{"kind", "outcome"})

	// RemoteCallsTotal counts outbound provider commands.
	RemoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "remote_calls_total",
		Help:      "Outbound payment provider calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	// LocalStateDriftTotal counts local writes that failed after the provider
	// accepted a command. Any increase should page someone.
	LocalStateDriftTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "local_state_drift_total",
		Help:      "Local persistence failures after a successful remote command.",
	}, []string{"operation"})

	// DriftRepairsTotal counts subscriptions corrected by the reconcile job.
	DriftRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "drift_repairs_total",
		Help:      "Subscriptions whose local state was corrected from the provider.",
	}, []string{"action"})

	// JobsTotal counts finished queue jobs.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "jobs_total",
		Help:      "Queue jobs by type and outcome.",
	}, []string{"type", "outcome"})
)
