// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OTPEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biodata",
		Name:      "otp_events_total",
		Help:      "OTP issue and verification outcomes.",
	}, []string{"outcome"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biodata",
		Name:      "application_transitions_total",
		Help:      "Application lifecycle transitions.",
	}, []string{"transition"})

	ImportedRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "biodata",
		Name:      "import_rows_total",
		Help:      "Rows committed by bulk import.",
	})

	PhotosSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biodata",
		Name:      "photos_saved_total",
		Help:      "Photos written to the content directory.",
	}, []string{"role"})
)
