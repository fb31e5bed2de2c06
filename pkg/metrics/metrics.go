// Package metrics exposes Prometheus collectors for the correction service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
)

const namespace = "daltonize"

// Metrics holds the service collectors on a private registry. It
// implements session.Observer.
type Metrics struct {
	registry *prometheus.Registry

	frameDuration  *prometheus.HistogramVec
	framesTotal    *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	sessionsClosed *prometheus.CounterVec
	stillDuration  *prometheus.HistogramVec
	stillRequests  *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		frameDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_duration_seconds",
				Help:      "Time to decode, correct and encode one stream frame",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"deficiency"},
		),
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Stream frames by outcome",
			},
			[]string{"status"}, // status: ok, input, resource, internal
		),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Stream frames dropped before processing",
			},
			[]string{"reason"}, // reason: superseded, throttled
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_open",
				Help:      "Number of open stream sessions",
			},
		),
		sessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_closed_total",
				Help:      "Closed stream sessions by reason",
			},
			[]string{"reason"},
		),
		stillDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "still_duration_seconds",
				Help:      "Still image request duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"deficiency"},
		),
		stillRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "still_requests_total",
				Help:      "Still image requests by outcome",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.frameDuration,
		m.framesTotal,
		m.framesDropped,
		m.sessionsActive,
		m.sessionsClosed,
		m.stillDuration,
		m.stillRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// FrameProcessed records a delivered stream frame.
func (m *Metrics) FrameProcessed(d deficiency.Type, elapsed time.Duration) {
	m.frameDuration.WithLabelValues(d.String()).Observe(elapsed.Seconds())
	m.framesTotal.WithLabelValues("ok").Inc()
}

// FrameDropped records a frame discarded by backpressure.
func (m *Metrics) FrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

// FrameFailed records a frame that produced an error event.
func (m *Metrics) FrameFailed(kind recolor.Kind) {
	m.framesTotal.WithLabelValues(string(kind)).Inc()
}

// SessionOpened records a new session.
func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
}

// SessionClosed records a closed session.
func (m *Metrics) SessionClosed(reason string) {
	m.sessionsActive.Dec()
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

// StillRequest records one still request. err is nil on success.
func (m *Metrics) StillRequest(d deficiency.Type, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = string(recolor.KindOf(err))
	} else {
		m.stillDuration.WithLabelValues(d.String()).Observe(elapsed.Seconds())
	}
	m.stillRequests.WithLabelValues(status).Inc()
}
