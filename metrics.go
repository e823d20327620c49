package plume

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plume_smtp_sessions_active",
			Help: "Currently active SMTP sessions.",
		},
	)
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plume_smtp_commands_total",
			Help: "SMTP commands processed, by verb.",
		},
		[]string{"verb"},
	)
	messagesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plume_smtp_messages_accepted_total",
			Help: "Messages accepted at the data terminator.",
		},
	)
	messagesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plume_smtp_messages_rejected_total",
			Help: "Messages rejected at the data terminator.",
		},
	)
)
