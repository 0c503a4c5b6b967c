package materializer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iconidentify/quickstage/internal/domain"
)

// Resolution paths for a materialized item.
const (
	viaLocal = "local"
	viaCache = "cache"
	viaFetch = "fetch"
)

// Metrics holds the materializer's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	resolved *prometheus.CounterVec
	failures *prometheus.CounterVec
	batches  *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewMetrics registers the materializer collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickstage",
			Name:      "items_resolved_total",
			Help:      "Items materialized, by how they were resolved.",
		}, []string{"via"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickstage",
			Name:      "item_failures_total",
			Help:      "Items that failed to materialize, by failure kind.",
		}, []string{"kind"}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickstage",
			Name:      "batches_total",
			Help:      "Completed materialization batches, by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quickstage",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a materialization batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "quickstage",
			Name:      "fetches_in_flight",
			Help:      "Remote fetches currently running.",
		}),
	}
}

func (m *Metrics) itemResolved(via string) {
	if m == nil {
		return
	}
	m.resolved.WithLabelValues(via).Inc()
}

func (m *Metrics) itemFailed(kind domain.FailureKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) batchDone(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) fetchStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
