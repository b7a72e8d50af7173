package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dispatchTotal) }

var dispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_dispatch_total",
		Help: "Inbound agent requests by processing path.",
	},
	[]string{"path"}, // 'sync', 'async'
)

func IncDispatch(path string) {
	dispatchTotal.WithLabelValues(norm(path)).Inc()
}
