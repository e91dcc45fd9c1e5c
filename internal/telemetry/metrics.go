package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_lifecycle_payments_created_total",
		Help: "Payments created at the gateway and persisted locally",
	})

	StatusChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_lifecycle_status_checks_total",
		Help: "Status checks against the gateway, by outcome",
	}, []string{"outcome"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_lifecycle_status_transitions_total",
		Help: "Persisted canonical status transitions, by new status",
	}, []string{"status"})

	RefundsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_lifecycle_refunds_created_total",
		Help: "Refunds created at the gateway",
	})

	RetriesSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_lifecycle_retries_spawned_total",
		Help: "Retry payments created for due recurring payments",
	})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_lifecycle_notification_failures_total",
		Help: "Best-effort notification deliveries that failed",
	})

	SweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_lifecycle_sweep_errors_total",
		Help: "Per-item errors swallowed during scheduler sweeps, by sweep",
	}, []string{"sweep"})
)
