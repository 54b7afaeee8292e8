package nsq

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks Prometheus counters/gauges for connection-level activity.
// Methods handle a nil receiver gracefully, so a nil *Metrics is a no-op —
// callers that never opt into metrics pay nothing for it.
type Metrics struct {
	PublishesTotal        *prometheus.CounterVec
	MessagesReceivedTotal prometheus.Counter
	AcksTotal             *prometheus.CounterVec // labels: outcome=[fin, req, touch]
	InFlight              prometheus.Gauge
}

// NewMetrics creates and registers the gonsq Prometheus metrics against
// registerer (prometheus.DefaultRegisterer if nil).
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gonsq_publishes_total",
				Help: "Total Publish calls that reached the handshake, by outcome (ok, error).",
			},
			[]string{"outcome"},
		),
		MessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gonsq_messages_received_total",
				Help: "Total messages delivered to the consumer handler.",
			},
		),
		AcksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gonsq_acks_total",
				Help: "Total FIN/REQ/TOUCH commands sent, by outcome.",
			},
			[]string{"outcome"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gonsq_messages_in_flight",
				Help: "Current number of unacknowledged in-flight messages.",
			},
		),
	}

	registerer.MustRegister(m.PublishesTotal, m.MessagesReceivedTotal, m.AcksTotal, m.InFlight)
	return m
}

func (m *Metrics) recordPublish(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.PublishesTotal.WithLabelValues("ok").Inc()
	} else {
		m.PublishesTotal.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) recordMessageReceived() {
	if m == nil {
		return
	}
	m.MessagesReceivedTotal.Inc()
	m.InFlight.Inc()
}

func (m *Metrics) recordAck(outcome string) {
	if m == nil {
		return
	}
	m.AcksTotal.WithLabelValues(outcome).Inc()
	if outcome == "fin" || outcome == "req" {
		m.InFlight.Dec()
	}
}
