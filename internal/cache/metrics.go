package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the cache's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	stores       *prometheus.CounterVec
	searches     *prometheus.CounterVec
	resizes      *prometheus.CounterVec
	inconsistent *prometheus.CounterVec
	indexSize    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// NewMetrics registers the cache collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kioku",
				Subsystem: "cache",
				Name:      "stores_total",
				Help:      "Total number of records stored",
			},
			[]string{"modality"},
		),
		searches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kioku",
				Subsystem: "cache",
				Name:      "searches_total",
				Help:      "Total number of similarity searches",
			},
			[]string{"modality"},
		),
		resizes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kioku",
				Subsystem: "cache",
				Name:      "resizes_total",
				Help:      "Total number of vector index resizes",
			},
			[]string{"modality"},
		),
		inconsistent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kioku",
				Subsystem: "cache",
				Name:      "inconsistent_ids_total",
				Help:      "Index ids whose record was missing from the store",
			},
			[]string{"modality"},
		),
		indexSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kioku",
				Subsystem: "cache",
				Name:      "index_size",
				Help:      "Number of points in the vector index",
			},
			[]string{"modality"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kioku",
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Cache operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"operation", "status"},
		),
	}
}

func (m *Metrics) recordStore(modality string, size int) {
	if m == nil {
		return
	}
	m.stores.WithLabelValues(modality).Inc()
	m.indexSize.WithLabelValues(modality).Set(float64(size))
}

func (m *Metrics) recordSearch(modality string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(modality).Inc()
}

func (m *Metrics) recordResize(modality string) {
	if m == nil {
		return
	}
	m.resizes.WithLabelValues(modality).Inc()
}

func (m *Metrics) recordInconsistent(modality string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.inconsistent.WithLabelValues(modality).Add(float64(n))
}

func (m *Metrics) recordIndexSize(modality string, size int) {
	if m == nil {
		return
	}
	m.indexSize.WithLabelValues(modality).Set(float64(size))
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.latency.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
