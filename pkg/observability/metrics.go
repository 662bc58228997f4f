package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote model calls
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diffapply",
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Total number of remote model requests by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	RemoteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "diffapply",
			Subsystem: "remote",
			Name:      "latency_seconds",
			Help:      "Remote model request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"service"},
	)

	// Analysis cache
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diffapply",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Analysis cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	// Sessions
	SessionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diffapply",
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Finished optimize steps by outcome",
		},
		[]string{"outcome"},
	)

	OpenPreviews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "diffapply",
			Subsystem: "preview",
			Name:      "open",
			Help:      "Number of comparison views currently open",
		},
	)
)

// Outcome labels for RemoteRequests.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeEmpty   = "empty"
)
