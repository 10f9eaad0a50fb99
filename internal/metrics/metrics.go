package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity registry.
type Metrics struct {
	// Enrollment outcomes: enrolled, duplicate_image, duplicate_face, key_conflict, invalid_input, error
	Enrollments *prometheus.CounterVec

	// Authentication results: match, no_match, error
	Authentications *prometheus.CounterVec

	// Stored embeddings skipped during scans because their dimension is wrong
	CorruptEmbeddings prometheus.Counter

	// Full registry scan latency by operation (classify, authenticate)
	ScanDuration *prometheus.HistogramVec

	// Rows visited per scan
	ScanSize *prometheus.HistogramVec

	Identities   prometheus.Gauge
	Placeholders prometheus.Gauge
}

// New registers the registry metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Enrollments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faceid_enrollments_total",
			Help: "Total enrollment attempts by outcome",
		}, []string{"outcome"}),

		Authentications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faceid_authentications_total",
			Help: "Total authentication attempts by result",
		}, []string{"result"}),

		CorruptEmbeddings: factory.NewCounter(prometheus.CounterOpts{
			Name: "faceid_corrupt_embeddings_skipped_total",
			Help: "Stored embeddings skipped during a scan because of a dimension mismatch",
		}),

		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faceid_scan_duration_seconds",
			Help:    "Duration of full identity scans",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		ScanSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faceid_scan_identities",
			Help:    "Identities visited per scan",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}, []string{"operation"}),

		Identities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "faceid_identities",
			Help: "Identities currently enrolled",
		}),

		Placeholders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "faceid_placeholder_identities",
			Help: "Enrolled identities without an embedding",
		}),
	}
}

// CorruptEmbeddingSkipped implements matching.Observer.
func (m *Metrics) CorruptEmbeddingSkipped() {
	if m != nil {
		m.CorruptEmbeddings.Inc()
	}
}

// ScanCompleted implements matching.Observer.
func (m *Metrics) ScanCompleted(operation string, d time.Duration, scanned int) {
	if m != nil {
		m.ScanDuration.WithLabelValues(operation).Observe(d.Seconds())
		m.ScanSize.WithLabelValues(operation).Observe(float64(scanned))
	}
}

// IncrementEnrollment records an enrollment outcome.
func (m *Metrics) IncrementEnrollment(outcome string) {
	if m != nil {
		m.Enrollments.WithLabelValues(outcome).Inc()
	}
}

// IncrementAuthentication records an authentication result.
func (m *Metrics) IncrementAuthentication(result string) {
	if m != nil {
		m.Authentications.WithLabelValues(result).Inc()
	}
}

// SetRegistrySize publishes the latest store counts.
func (m *Metrics) SetRegistrySize(identities, placeholders int) {
	if m != nil {
		m.Identities.Set(float64(identities))
		m.Placeholders.Set(float64(placeholders))
	}
}
