package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "notifications_sent_total",
		Help:      "Telegram messages sent, by kind",
	}, []string{"kind"})

	messagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "notifications_failed_total",
		Help:      "Telegram messages given up on, by reason",
	}, []string{"reason"})

	sendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "notification_retries_total",
		Help:      "Total number of retry attempts",
	})

	queueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "notifications_dropped_total",
		Help:      "Messages dropped because the send queue was full",
	})
)
