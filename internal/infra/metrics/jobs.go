package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsFinishedTotal, pollCycles) }

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glue_jobs_finished_total",
		Help: "Total number of watched job runs reaching a terminal state.",
	},
	[]string{"state"}, // 'succeeded', 'failed', 'stopped', 'timeout'
)

var pollCycles = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "glue_poll_cycles_total",
		Help: "Total number of run-state reads performed by pollers.",
	},
)

func IncJobFinished(state string) {
	jobsFinishedTotal.WithLabelValues(norm(state)).Inc()
}

func IncPollCycle() { pollCycles.Inc() }
