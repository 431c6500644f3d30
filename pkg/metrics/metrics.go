// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExportRunsTotal tracks export runs by final status
	ExportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "export",
			Name:      "runs_total",
			Help:      "Total number of channel export runs by status",
		},
		[]string{"status", "full"},
	)

	// ExportRunDuration tracks export run duration in seconds
	ExportRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "export",
			Name:      "run_duration_seconds",
			Help:      "Duration of channel export runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"full"},
	)

	// ExportRunsInFlight tracks exports currently running
	ExportRunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "export",
			Name:      "runs_in_flight",
			Help:      "Number of channel exports currently running",
		},
	)

	// CatalogElementsTotal tracks synthesized catalog elements by collection
	CatalogElementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "catalog",
			Name:      "elements_total",
			Help:      "Total number of catalog elements synthesized by collection",
		},
		[]string{"collection"},
	)

	// SkippedEntitiesTotal tracks entities left out of a document
	SkippedEntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "catalog",
			Name:      "skipped_entities_total",
			Help:      "Total number of entities skipped during synthesis by reason",
		},
		[]string{"reason"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// ImportPollsTotal tracks commerce import status polls
	ImportPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "commerce",
			Name:      "import_polls_total",
			Help:      "Total number of commerce import status polls",
		},
		[]string{"result"},
	)
)
