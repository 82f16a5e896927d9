// Package metrics defines the Prometheus collectors exported on /-/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trmnl_quotes"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so components can treat metrics as optional.
type Metrics struct {
	quotesStored prometheus.Gauge
	quotesAdded  *prometheus.CounterVec
	dispatches   *prometheus.CounterVec
	dispatchTime prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses the default
// registerer, which promhttp.Handler serves.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		quotesStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored",
			Help:      "Number of quotes currently in the store.",
		}),
		quotesAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "added_total",
			Help:      "Quotes added to the store, by origin.",
		}, []string{"origin"}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Webhook dispatch cycles, by outcome.",
		}, []string{"outcome"}),
		dispatchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent delivering a quote to the webhook.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// SetQuotesStored records the current collection size.
func (m *Metrics) SetQuotesStored(n int) {
	if m == nil {
		return
	}

	m.quotesStored.Set(float64(n))
}

// AddQuotes counts quotes added from origin ("api", "scrape", "seed").
func (m *Metrics) AddQuotes(origin string, n int) {
	if m == nil || n <= 0 {
		return
	}

	m.quotesAdded.WithLabelValues(origin).Add(float64(n))
}

// ObserveDispatch counts one dispatch cycle and, for cycles that reached the
// network, its duration.
func (m *Metrics) ObserveDispatch(outcome string, seconds float64) {
	if m == nil {
		return
	}

	m.dispatches.WithLabelValues(outcome).Inc()

	if seconds > 0 {
		m.dispatchTime.Observe(seconds)
	}
}
