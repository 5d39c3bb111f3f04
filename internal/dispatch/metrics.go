package dispatch

import (
	"time"

	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const resultSuccess = "success"

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matfree_dispatch_total",
			Help: "Total number of engine operations dispatched.",
		},
		[]string{"operation", "strategy", "result"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matfree_dispatch_duration_seconds",
			Help:    "Engine operation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "strategy"},
	)

	strategyInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matfree_strategy_info",
			Help: "Resolved execution strategy (1 for the active one).",
		},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal)
	prometheus.MustRegister(dispatchDuration)
	prometheus.MustRegister(strategyInfo)
}

func recordDispatch(op model.Operation, strategy model.Strategy, result string, elapsed time.Duration) {
	dispatchTotal.WithLabelValues(string(op), string(strategy), result).Inc()
	dispatchDuration.WithLabelValues(string(op), string(strategy)).Observe(elapsed.Seconds())
}

func setStrategyInfo(active model.Strategy) {
	for _, s := range []model.Strategy{model.StrategyNative, model.StrategySubprocess} {
		v := 0.0
		if s == active {
			v = 1
		}
		strategyInfo.WithLabelValues(string(s)).Set(v)
	}
}
