package miner

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusHashes         prometheus.Counter
	prometheusHashrate       prometheus.Gauge
	prometheusBlocksFound    prometheus.Counter
	prometheusBlocksAccepted prometheus.Counter
	prometheusRestarts       prometheus.Counter
	prometheusBuildTemplate  prometheus.Histogram
	prometheusTxsUsed        prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusHashes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hidecoin",
			Subsystem: "miner",
			Name:      "hashes_total",
			Help:      "Number of proof of work hashes computed",
		},
	)
	prometheusHashrate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hidecoin",
			Subsystem: "miner",
			Name:      "hashrate",
			Help:      "Hashes per second over the last report interval",
		},
	)
	prometheusBlocksFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hidecoin",
			Subsystem: "miner",
			Name:      "blocks_found_total",
			Help:      "Number of blocks solved",
		},
	)
	prometheusBlocksAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hidecoin",
			Subsystem: "miner",
			Name:      "blocks_accepted_total",
			Help:      "Number of solved blocks accepted into the local chain",
		},
	)
	prometheusRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hidecoin",
			Subsystem: "miner",
			Name:      "restarts_total",
			Help:      "Number of searches abandoned for a restart",
		},
	)
	prometheusBuildTemplate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hidecoin",
			Subsystem: "miner",
			Name:      "build_template_seconds",
			Help:      "Time spent building block templates",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)
	prometheusTxsUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hidecoin",
			Subsystem: "miner",
			Name:      "pool_txs_used_total",
			Help:      "Pending transactions removed from the pool after acceptance",
		},
	)
}
