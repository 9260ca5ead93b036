// Package metrics holds the Prometheus instruments of voicegate.
//
// Instruments are registered on a caller-supplied registerer so tests and
// embedders can use private registries. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicegate"

// Metrics contains all instruments.
type Metrics struct {
	Verifications      *prometheus.CounterVec
	VerifyErrors       *prometheus.CounterVec
	VerifyDuration     prometheus.Histogram
	Similarity         prometheus.Histogram
	FakeConfidence     prometheus.Histogram
	SpeechDuration     prometheus.Histogram
	Enrollments        *prometheus.CounterVec
	EnrollmentSamples  prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
	StreamSessions     prometheus.Gauge
}

// New creates and registers all instruments on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification attempts by outcome.",
		}, []string{"accepted", "reason"}),
		VerifyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_errors_total",
			Help:      "Verification attempts that failed with an error.",
		}, []string{"kind"}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_duration_seconds",
			Help:      "Time spent verifying one attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}),
		Similarity: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_score",
			Help:      "Cosine similarity between attempt and enrolled centroid.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		FakeConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fake_confidence",
			Help:      "Deepfake classifier confidence per attempt.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		SpeechDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_duration_seconds",
			Help:      "Active speech found by the VAD per attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		}),
		Enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Enrollment and retrain operations by result.",
		}, []string{"op", "result"}),
		EnrollmentSamples: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrollment_samples",
			Help:      "Samples per successful enrollment.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		StreamSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_sessions",
			Help:      "Open streaming verification sessions.",
		}),
	}
}

// RecordVerification records one completed attempt.
func (m *Metrics) RecordVerification(accepted bool, reason string, similarity, fake float64, speech, elapsed time.Duration) {
	if m == nil {
		return
	}
	acc := "false"
	if accepted {
		acc = "true"
	}
	m.Verifications.WithLabelValues(acc, reason).Inc()
	m.VerifyDuration.Observe(elapsed.Seconds())
	if speech > 0 {
		m.SpeechDuration.Observe(speech.Seconds())
	}
	// Short-circuited attempts have no scores.
	if reason != "no_speech" && reason != "insufficient_speech" {
		m.Similarity.Observe(similarity)
		m.FakeConfidence.Observe(fake)
	}
}

// RecordVerifyError records an attempt that ended in an error.
func (m *Metrics) RecordVerifyError(kind string) {
	if m == nil {
		return
	}
	m.VerifyErrors.WithLabelValues(kind).Inc()
}

// RecordEnrollment records an enroll or retrain call.
func (m *Metrics) RecordEnrollment(op string, samples int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Enrollments.WithLabelValues(op, "error").Inc()
		return
	}
	m.Enrollments.WithLabelValues(op, "ok").Inc()
	m.EnrollmentSamples.Observe(float64(samples))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// StreamOpened increments the open stream gauge; call the returned function
// when the stream closes.
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.StreamSessions.Inc()
	return m.StreamSessions.Dec
}
