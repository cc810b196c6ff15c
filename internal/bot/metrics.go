package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики диспетчера
//
// Метрики позволяют отслеживать:
// - Количество событий по типу и время их обработки
// - Отброшенные обновления с причиной
// - Паники в обработчиках

const metricsNamespace = "tubegrab"

// Причины отброса обновления.
const (
	dropReasonUnauthorized  = "unauthorized"
	dropReasonUnclassified  = "unclassified"
	dropReasonNoStage       = "no_stage"
	dropReasonUnknownButton = "unknown_button"
)

var (
	// eventsTotal считает обработанные события.
	// Labels:
	//   - kind: start, button, text
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bot",
			Name:      "events_total",
			Help:      "Total number of dispatched events by kind",
		},
		[]string{"kind"},
	)

	// eventDuration измеряет время обработки события.
	// Для текстовых событий включает весь цикл загрузки.
	eventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "bot",
			Name:      "event_duration_seconds",
			Help:      "Duration of event handling in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	droppedUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bot",
			Name:      "dropped_updates_total",
			Help:      "Updates that produced no action, by reason",
		},
		[]string{"reason"},
	)

	panicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bot",
			Name:      "panics_total",
			Help:      "Panics recovered while handling updates",
		},
	)
)

func recordEvent(kind string, seconds float64) {
	eventsTotal.WithLabelValues(kind).Inc()
	eventDuration.WithLabelValues(kind).Observe(seconds)
}

func recordDropped(reason string) {
	droppedUpdatesTotal.WithLabelValues(reason).Inc()
}

func recordPanic() {
	panicsTotal.Inc()
}
