// Package metrics holds the process-wide Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_broadcasts_total",
		Help: "Events fanned out to connected clients, by event type.",
	}, []string{"event"})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radio_connected_clients",
		Help: "Currently connected realtime clients.",
	})

	SubmissionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radio_submission_attempts_total",
		Help: "Platform queue hand-off attempts, including retries.",
	})

	SubmissionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radio_submission_retries_total",
		Help: "Attempts deferred because the platform rate limited us.",
	})

	SubmissionsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radio_submissions_delivered_total",
		Help: "Submissions confirmed by the platform.",
	})

	SubmissionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radio_submission_failures_total",
		Help: "Submissions dropped after a permanent platform error.",
	})
)
