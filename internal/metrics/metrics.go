package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	strategyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "memefeed",
		Subsystem: "recommendation",
		Name:      "strategy_duration_seconds",
		Help:      "Latency of individual recommendation strategies.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"strategy"})

	strategyResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memefeed",
		Subsystem: "recommendation",
		Name:      "strategy_results_total",
		Help:      "Results returned per strategy, split by full vs fallback.",
	}, []string{"strategy", "fallback"})

	cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memefeed",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Versioned cache lookups by family and outcome.",
	}, []string{"family", "outcome"})

	versionBumps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memefeed",
		Subsystem: "cache",
		Name:      "version_bumps_total",
		Help:      "Cache family version bumps by level.",
	}, []string{"family", "level"})
)

func ObserveStrategy(strategy string, d time.Duration) {
	strategyLatency.WithLabelValues(strategy).Observe(d.Seconds())
}

func StrategyResult(strategy string, fallback bool) {
	label := "false"
	if fallback {
		label = "true"
	}
	strategyResults.WithLabelValues(strategy, label).Inc()
}

func CacheHit(family string)  { cacheOps.WithLabelValues(family, "hit").Inc() }
func CacheMiss(family string) { cacheOps.WithLabelValues(family, "miss").Inc() }

func VersionBump(family, level string) {
	versionBumps.WithLabelValues(family, level).Inc()
}
