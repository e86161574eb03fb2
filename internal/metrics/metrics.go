// Package metrics provides Prometheus metrics for the file-operation core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fexplorer_operations_total",
			Help: "Total number of filesystem operations by kind and outcome",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fexplorer_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	eventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fexplorer_events_published_total",
			Help: "Total number of affected-paths events published",
		},
	)

	handlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fexplorer_handler_panics_total",
			Help: "Total number of recovered subscriber handler panics",
		},
	)

	subscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fexplorer_subscriptions",
			Help: "Number of live change notifier subscriptions",
		},
	)

	sessionReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fexplorer_session_reloads_total",
			Help: "Listing session reloads by outcome (applied, discarded)",
		},
		[]string{"outcome"},
	)

	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fexplorer_jobs_finished_total",
			Help: "Background copy jobs finished by status",
		},
		[]string{"status"},
	)
)

// ObserveOp records one filesystem operation.
func ObserveOp(op string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// EventPublished records a published event.
func EventPublished() {
	eventsPublished.Inc()
}

// HandlerPanicked records a recovered handler panic.
func HandlerPanicked() {
	handlerPanics.Inc()
}

// SetSubscriptions sets the live subscription gauge.
func SetSubscriptions(n int) {
	subscriptions.Set(float64(n))
}

// SessionReload records whether a finished listing was applied or discarded as stale.
func SessionReload(applied bool) {
	if applied {
		sessionReloads.WithLabelValues("applied").Inc()
		return
	}
	sessionReloads.WithLabelValues("discarded").Inc()
}

// JobFinished records a finished background job.
func JobFinished(status string) {
	jobsFinished.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
