package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tubegrab"

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "download",
			Name:      "runs_total",
			Help:      "Total number of download runs by final status",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "download",
			Name:      "run_duration_seconds",
			Help:      "Duration of download runs from acknowledgement to cleanup",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"status"},
	)

	runsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "download",
			Name:      "runs_in_flight",
			Help:      "Number of download runs currently executing",
		},
	)

	deliveredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "download",
			Name:      "delivered_bytes_total",
			Help:      "Total size of files delivered to chats",
		},
	)

	retainedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "download",
			Name:      "retained_files_total",
			Help:      "Files left in the download folder after a failed delivery",
		},
	)
)

func recordRun(status Status, seconds float64) {
	runsTotal.WithLabelValues(status.String()).Inc()
	runDuration.WithLabelValues(status.String()).Observe(seconds)
}
