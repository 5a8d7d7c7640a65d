package db

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relayer",
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "Duration of ledger queries grouped by the calling repository method.",
		Buckets:   []float64{0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	}, []string{"query"})

	QueryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "db",
		Name:      "query_results_total",
		Help:      "Number of ledger queries grouped by the calling repository method and outcome.",
	}, []string{"query", "status"})
)

func ObserveDuration(query string) func() time.Duration {
	return prometheus.NewTimer(QueryDurations.WithLabelValues(query)).ObserveDuration
}

func ObserveError(query string, err error) {
	switch {
	case err == nil:
		QueryResults.WithLabelValues(query, "ok").Inc()
	case errors.Is(err, ErrNotFound):
		QueryResults.WithLabelValues(query, "not_found").Inc()
	default:
		QueryResults.WithLabelValues(query, "error").Inc()
	}
}
