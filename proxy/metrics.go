package proxy

import "github.com/prometheus/client_golang/prometheus"

// Registerer is satisfied by *prometheus.Registry; a nil Registerer
// passed to Serve disables metrics entirely, matching this module's
// existing client.Registerer convention.
type Registerer interface {
	MustRegister(...prometheus.Collector)
}

type metrics struct {
	reconnects      *prometheus.CounterVec
	fidsReplayed    prometheus.Counter
}

func newMetrics(reg Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p9p",
			Subsystem: "proxy",
			Name:      "reconnect_attempts_total",
			Help:      "Upstream reconnect attempts, partitioned by outcome.",
		}, []string{"outcome"}),
		fidsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p9p",
			Subsystem: "proxy",
			Name:      "fids_replayed_total",
			Help:      "Fids successfully re-attached to a reconnected upstream.",
		}),
	}
	reg.MustRegister(m.reconnects, m.fidsReplayed)
	return m
}

func (m *metrics) reconnectAttempt(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.reconnects.WithLabelValues("success").Inc()
	} else {
		m.reconnects.WithLabelValues("failure").Inc()
	}
}

func (m *metrics) fidReplayed() {
	if m == nil {
		return
	}
	m.fidsReplayed.Inc()
}
