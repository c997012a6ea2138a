package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of an engine
type Metrics struct {
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	RowsReturned  *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flatquery_queries_total",
				Help: "Total number of queries by entity and outcome",
			},
			[]string{"entity", "outcome"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flatquery_query_duration_seconds",
				Help:    "Duration of queries in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"entity"},
		),
		RowsReturned: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flatquery_rows_returned",
				Help:    "Number of flat rows returned per successful query",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"entity"},
		),
	}
}

func (m *Metrics) observe(entity, outcome string, elapsed time.Duration, rows int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(entity, outcome).Inc()
	m.QueryDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
	if outcome == outcomeOK {
		m.RowsReturned.WithLabelValues(entity).Observe(float64(rows))
	}
}
