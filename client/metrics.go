package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aqwari.net/net/p9p/wire"
)

// Registerer is satisfied by *prometheus.Registry and the default
// prometheus.DefaultRegisterer; a nil Registerer passed to Dial
// disables metrics collection entirely, so instrumentation is never
// a hard requirement for callers that just want a working client.
type Registerer interface {
	MustRegister(...prometheus.Collector)
}

// metrics holds the optional Prometheus instrumentation for a
// Client. A nil *metrics (what newMetrics(nil) returns) is safe to
// use and records nothing.
type metrics struct {
	inflight   prometheus.Gauge
	requests   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newMetrics(reg Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "p9p",
			Subsystem: "client",
			Name:      "inflight_requests",
			Help:      "Number of 9P2000.L requests awaiting a reply.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p9p",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total 9P2000.L requests issued, by message type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p9p",
			Subsystem: "client",
			Name:      "request_errors_total",
			Help:      "Total 9P2000.L requests that failed, by message type.",
		}, []string{"type"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "p9p",
			Subsystem: "client",
			Name:      "request_latency_seconds",
			Help:      "Round-trip latency of 9P2000.L requests, by message type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
	reg.MustRegister(m.inflight, m.requests, m.errors, m.latency)
	return m
}

// requestStart records the start of a call and returns the time it
// began, or the zero Time if m is nil.
func (m *metrics) requestStart(body wire.Body) time.Time {
	if m == nil {
		return time.Time{}
	}
	m.inflight.Inc()
	m.requests.WithLabelValues(msgTypeLabel(body)).Inc()
	return time.Now()
}

func (m *metrics) requestDone(start time.Time, body wire.Body, err error) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	label := msgTypeLabel(body)
	m.latency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(label).Inc()
	}
}

func msgTypeLabel(body wire.Body) string {
	if body == nil {
		return "unknown"
	}
	return wire.TypeOf(body).String()
}
