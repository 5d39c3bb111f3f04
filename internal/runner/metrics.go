package runner

import "github.com/prometheus/client_golang/prometheus"

var logLinesDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "matfree_log_lines_dropped_total",
		Help: "Output lines not delivered to a live log subscriber whose buffer was full.",
	},
)

func init() {
	prometheus.MustRegister(logLinesDropped)
}
