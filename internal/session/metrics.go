package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tubegrab"

var activeConversations = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "session",
		Name:      "active_conversations",
		Help:      "Number of chats with a recorded conversation stage",
	},
)

func setActiveConversations(n int) {
	activeConversations.Set(float64(n))
}
