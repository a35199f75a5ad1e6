// Package metrics holds the Prometheus collectors shared by the tournament
// engine and the comparator decorators.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComparatorBatchesTotal counts comparator batch calls by backend and result.
	ComparatorBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourney_comparator_batches_total",
			Help: "Comparator batch invocations by backend and result",
		},
		[]string{"backend", "result"},
	)

	// ComparatorGroupsTotal counts groups submitted to the comparator.
	ComparatorGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourney_comparator_groups_total",
			Help: "Groups submitted to the comparator by backend",
		},
		[]string{"backend"},
	)

	// ComparatorBatchDuration observes batch latency.
	ComparatorBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tourney_comparator_batch_duration_seconds",
			Help:    "Comparator batch latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"backend"},
	)

	// ComparatorCacheHitsTotal counts groups answered from the comparator cache.
	ComparatorCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tourney_comparator_cache_hits_total",
			Help: "Groups answered from the comparator cache",
		},
	)

	// MalformedOutputsTotal counts groups that fell back to input order.
	MalformedOutputsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tourney_malformed_outputs_total",
			Help: "Groups whose comparator output was repaired from input order",
		},
	)

	// QueriesTotal counts finished queries by outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourney_queries_total",
			Help: "Reranked queries by tournament outcome",
		},
		[]string{"outcome"},
	)

	// RoundsTotal counts tournament rounds across all queries.
	RoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tourney_rounds_total",
			Help: "Tournament rounds executed",
		},
	)
)
