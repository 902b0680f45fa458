// Package metrics exposes Prometheus counters for billing state transitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts committed status transitions by entity and target status.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_status_transitions_total",
		Help: "Committed JIB / cash call status transitions.",
	}, []string{"entity", "to"})

	// Rejections counts synchronously rejected operations by error kind.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_rejections_total",
		Help: "Operations rejected with a domain error.",
	}, []string{"kind"})

	// NotificationFailures counts events that could not be handed to the broker.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_notification_failures_total",
		Help: "Outbound notification events that failed to publish.",
	}, []string{"type"})

	// TxRetries counts transaction attempts retried after transient contention.
	TxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_tx_retries_total",
		Help: "Transactions retried after serialization failure, deadlock or lock timeout.",
	})
)
