package pricing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts which pricing path served each estimate.
type Metrics struct {
	estimates *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	latency   prometheus.Histogram
}

// NewMetrics registers the pricing metrics on the provided registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	estimates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_estimates_total",
		Help: "Price estimates produced, by source.",
	}, []string{"source"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_fallback_total",
		Help: "Estimates served from the rate table, by reason.",
	}, []string{"reason"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_provider_duration_seconds",
		Help:    "Latency of AI pricing provider calls.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(estimates, fallbacks, latency)
	return &Metrics{estimates: estimates, fallbacks: fallbacks, latency: latency}
}

func (m *Metrics) observe(est Estimate) {
	if m == nil || m.estimates == nil {
		return
	}
	m.estimates.WithLabelValues(string(est.Source)).Inc()
	if est.IsFallback() {
		m.fallbacks.WithLabelValues(string(est.FallbackReason)).Inc()
	}
}

func (m *Metrics) observeLatency(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}
