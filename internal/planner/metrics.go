package planner

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the planner's Prometheus collectors
type Metrics struct {
	searches     *prometheus.CounterVec
	searchTime   prometheus.Histogram
	priceFetches *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awattprice",
			Name:      "searches_total",
			Help:      "Cheapest window searches by outcome.",
		}, []string{"outcome"}),
		searchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "awattprice",
			Name:      "search_duration_seconds",
			Help:      "Time spent in the cheapest window search.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		priceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awattprice",
			Name:      "price_fetches_total",
			Help:      "Price lookups per day by source.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.searches, m.searchTime, m.priceFetches)
	return m
}
