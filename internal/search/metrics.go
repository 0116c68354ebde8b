package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts query outcomes. A nil *Metrics records nothing.
type Metrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	generation *prometheus.HistogramVec
}

// NewMetrics registers the query collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kioku",
				Subsystem: "query",
				Name:      "hits_total",
				Help:      "Queries answered from the cache",
			},
			[]string{"modality"},
		),
		misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kioku",
				Subsystem: "query",
				Name:      "misses_total",
				Help:      "Queries that fell through to the generator",
			},
			[]string{"modality"},
		),
		generation: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kioku",
				Subsystem: "query",
				Name:      "generation_duration_seconds",
				Help:      "Latency of generator calls on cache misses",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"modality"},
		),
	}
}

func (m *Metrics) recordHit(modality string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(modality).Inc()
}

func (m *Metrics) recordMiss(modality string, seconds float64) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(modality).Inc()
	m.generation.WithLabelValues(modality).Observe(seconds)
}
