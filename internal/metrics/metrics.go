// Package metrics exposes capture and transport counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture outcomes.
const (
	OutcomeCaptured = "captured"
	OutcomeFailed   = "failed"
)

// Metrics contains all Prometheus metrics for voicegate
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	Captures        *prometheus.CounterVec
	CaptureDuration prometheus.Histogram
	ContainerBytes  prometheus.Histogram
	DroppedFrames   prometheus.Counter
	SessionState    *prometheus.GaugeVec

	// Validation metrics
	ValidationFailures *prometheus.CounterVec

	// Outbound request metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_captures_total",
			Help: "Captures that finished, by outcome",
		}, []string{"outcome"}),
		CaptureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_capture_duration_seconds",
			Help:    "Wall time from recording start to encoded container",
			Buckets: []float64{1, 2, 4, 6, 8, 10, 12, 15},
		}),
		ContainerBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_container_bytes",
			Help:    "Size of encoded containers",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 6),
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_dropped_frames_total",
			Help: "Frames dropped because the consumer fell behind the audio callback",
		}),
		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicegate_session_state",
			Help: "1 for the state the capture session is in, 0 otherwise",
		}, []string{"state"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_validation_failures_total",
			Help: "Containers rejected by the validator, by header field",
		}, []string{"field"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_requests_total",
			Help: "Requests to the voice service, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicegate_request_duration_seconds",
			Help:    "Latency of requests to the voice service",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.Captures,
		m.CaptureDuration,
		m.ContainerBytes,
		m.DroppedFrames,
		m.SessionState,
		m.ValidationFailures,
		m.Requests,
		m.RequestDuration,
	)
	return m
}

// SetState marks state as current and every other known state as inactive.
func (m *Metrics) SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
