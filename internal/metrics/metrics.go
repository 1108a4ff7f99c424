package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_booking_operations_total",
			Help: "Booking operations by name and outcome",
		},
		[]string{"operation", "status"},
	)

	OccurrencesMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_occurrences_materialized_total",
			Help: "Occurrences created or skipped when expanding templates",
		},
		[]string{"result"},
	)

	// LockFailOpen counts booking attempts that proceeded without the
	// occurrence lock because the lock backend was unreachable.
	LockFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorbook_lock_fail_open_total",
			Help: "Booking attempts that proceeded without the distributed lock",
		},
	)

	LedgerMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_ledger_mutations_total",
			Help: "Ledger mutations by source and result (applied or replayed)",
		},
		[]string{"source", "result"},
	)

	PayoutTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_payout_transitions_total",
			Help: "Payout status changes",
		},
		[]string{"status"},
	)

	SweepProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_sweep_processed_total",
			Help: "Records changed by scheduled sweeps",
		},
		[]string{"job"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentorbook_sweep_duration_seconds",
			Help:    "Duration of scheduled sweeps",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"job"},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_notifications_delivered_total",
			Help: "Notification deliveries by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentorbook_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels err as "ok" or "error".
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
