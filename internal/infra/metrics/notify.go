package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notifyAttemptsTotal, notifySendsTotal) }

var notifyAttemptsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "notify_attempts_total",
		Help: "Total delivery attempts made by the notification dispatcher.",
	},
)

var notifySendsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notify_sends_total",
		Help: "Notification sends by final outcome.",
	},
	[]string{"outcome"}, // 'delivered', 'exhausted', 'no_channel'
)

func IncNotifyAttempt() { notifyAttemptsTotal.Inc() }

func IncNotifySend(outcome string) {
	notifySendsTotal.WithLabelValues(norm(outcome)).Inc()
}
