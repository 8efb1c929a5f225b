package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mya_getter_build_info",
		Help: "Build information for the mya-getter binary",
	}, []string{"version", "commit", "date"})

	QueriesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mya_getter_queries_started_total",
		Help: "Number of archiver queries started",
	})

	QueriesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mya_getter_queries_completed_total",
		Help: "Number of archiver queries that completed successfully",
	})

	QueriesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mya_getter_queries_failed_total",
		Help: "Number of archiver queries that failed",
	})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mya_getter_query_duration_seconds",
		Help:    "Wall clock duration of individual archiver queries",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
