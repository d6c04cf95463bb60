package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"aqwari.net/net/p9p/wire"
)

// Registerer is satisfied by *prometheus.Registry; a nil Registerer
// passed via Options disables metrics entirely, matching this
// module's client.Registerer convention.
type Registerer interface {
	MustRegister(...prometheus.Collector)
}

// serverMetrics holds the optional Prometheus instrumentation shared
// by Serve and ServePool. A nil *serverMetrics (from newServerMetrics
// with a nil Registerer) is safe to use and records nothing.
type serverMetrics struct {
	connsOpen *prometheus.GaugeVec
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
}

func newServerMetrics(reg Registerer) *serverMetrics {
	if reg == nil {
		return nil
	}
	m := &serverMetrics{
		connsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "p9p",
			Subsystem: "server",
			Name:      "connections_open",
			Help:      "Currently open client connections.",
		}, nil),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p9p",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests dispatched to the Filesystem handler, by message type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p9p",
			Subsystem: "server",
			Name:      "request_errors_total",
			Help:      "Requests the Filesystem handler answered with Rlerror, by message type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.connsOpen, m.requests, m.errors)
	return m
}

func (m *serverMetrics) connOpened() {
	if m == nil {
		return
	}
	m.connsOpen.WithLabelValues().Inc()
}

func (m *serverMetrics) connClosed() {
	if m == nil {
		return
	}
	m.connsOpen.WithLabelValues().Dec()
}

func (m *serverMetrics) requestStart(body wire.Body) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(wire.TypeOf(body).String()).Inc()
}

func (m *serverMetrics) requestDone(req, resp wire.Body) {
	if m == nil {
		return
	}
	if _, failed := resp.(wire.Rlerror); failed {
		m.errors.WithLabelValues(wire.TypeOf(req).String()).Inc()
	}
}
