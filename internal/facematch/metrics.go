package facematch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRequestsTotal     = "facematch_requests_total"
	MetricInferenceDuration = "facematch_inference_duration_seconds"
	MetricCandidatesStaged  = "facematch_candidates_staged"
)

// Request outcomes used as metric label values.
const (
	OutcomeMatched       = "matched"
	OutcomeNoMatch       = "no_match"
	OutcomeNoCandidates  = "no_candidates"
	OutcomeInvalidUpload = "invalid_upload"
	OutcomeUnavailable   = "unavailable"
	OutcomeError         = "error"
)

// Metrics contains Prometheus metrics for the face-match pipeline.
// All operations are thread-safe.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	candidatesStaged  prometheus.Histogram
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Total number of face-match requests by outcome",
			},
			[]string{"outcome"},
		),
		inferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricInferenceDuration,
				Help:    "Duration of inference service calls in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		candidatesStaged: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricCandidatesStaged,
				Help:    "Number of candidate photos staged per request",
				Buckets: prometheus.ExponentialBuckets(1, 4, 6), // 1 to ~1000
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.inferenceDuration,
		m.candidatesStaged,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRequests increments the request counter for the given outcome.
func (m *Metrics) IncRequests(outcome string) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveInference records one inference call's duration in seconds.
func (m *Metrics) ObserveInference(seconds float64) {
	m.inferenceDuration.Observe(seconds)
}

// ObserveCandidates records how many candidates were staged for a request.
func (m *Metrics) ObserveCandidates(n int) {
	m.candidatesStaged.Observe(float64(n))
}
