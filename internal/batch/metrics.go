package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gleaner",
		Name:      "batch_runs_total",
		Help:      "Number of batches executed.",
	})
	metricItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gleaner",
		Name:      "batch_items_total",
		Help:      "Batch items by outcome (ok or an error kind).",
	}, []string{"outcome"})
	metricDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gleaner",
		Name:      "batch_duration_seconds",
		Help:      "Wall-clock duration of a batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func recordItem(it Item) {
	outcome := "ok"
	if !it.OK() {
		outcome = it.Kind()
	}
	metricItems.WithLabelValues(outcome).Inc()
}

func recordRun(o Outcome) {
	metricRuns.Inc()
	metricDuration.Observe(o.Duration.Seconds())
}
