package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tubegrab"

var (
	storageSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "size_bytes",
			Help:      "Total size of the database file in bytes",
		},
	)

	storageTableBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "table_bytes",
			Help:      "Size of each database table in bytes",
		},
		[]string{"table"},
	)

	// journalWritesTotal считает записи журнала по статусу, включая неудачные вставки (status="write_error").
	journalWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "journal",
			Name:      "writes_total",
			Help:      "Download journal inserts by run status",
		},
		[]string{"status"},
	)

	journalCleanupDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "journal",
			Name:      "cleanup_deleted_total",
			Help:      "Journal rows removed by the periodic cleanup",
		},
	)

	journalCleanupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "journal",
			Name:      "cleanup_duration_seconds",
			Help:      "Duration of journal cleanup in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

const journalWriteError = "write_error"

// SetStorageSize updates the storage size metric.
func SetStorageSize(bytes int64) {
	storageSizeBytes.Set(float64(bytes))
}

// SetTableSize updates the table size metric.
func SetTableSize(table string, bytes int64) {
	storageTableBytes.WithLabelValues(table).Set(float64(bytes))
}

func recordJournalWrite(status string, err error) {
	if err != nil {
		status = journalWriteError
	}
	journalWritesTotal.WithLabelValues(status).Inc()
}

func recordJournalCleanup(deleted int64, seconds float64) {
	journalCleanupDeletedTotal.Add(float64(deleted))
	journalCleanupDuration.Observe(seconds)
}
