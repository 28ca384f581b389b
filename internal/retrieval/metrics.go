package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexedArticlesTotal tracks the number of articles in the vector index.
	IndexedArticlesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "memoryd",
			Subsystem: "retrieval",
			Name:      "indexed_articles_total",
			Help:      "Number of articles currently held in the vector index",
		},
	)

	// IndexOperations counts index writes.
	// Labels: result (success, error)
	IndexOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memoryd",
			Subsystem: "retrieval",
			Name:      "index_operations_total",
			Help:      "Total number of article index operations",
		},
		[]string{"result"},
	)

	// QueryDuration tracks how long similarity queries take.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "memoryd",
			Subsystem: "retrieval",
			Name:      "query_duration_seconds",
			Help:      "Duration of similarity queries in seconds, embedding call included",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// QueryTotal counts similarity queries.
	// Labels: result (success, error)
	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memoryd",
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total number of similarity queries",
		},
		[]string{"result"},
	)
)

func recordIndexResult(err error) {
	if err != nil {
		IndexOperations.WithLabelValues("error").Inc()
		return
	}
	IndexOperations.WithLabelValues("success").Inc()
}

func recordQueryResult(start time.Time, err error) {
	QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		QueryTotal.WithLabelValues("error").Inc()
		return
	}
	QueryTotal.WithLabelValues("success").Inc()
}
