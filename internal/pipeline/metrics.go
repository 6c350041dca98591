package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps the Prometheus counters the processor pool updates.
// Registered once per process and passed down rather than using the
// default global registry, so tests can construct their own.
type Metrics struct {
	receivedC *prometheus.CounterVec
	ackedC    *prometheus.CounterVec
	nackedC   *prometheus.CounterVec
	droppedC  *prometheus.CounterVec
}

// NewMetrics registers the pipeline's counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		receivedC: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "pipeline",
			Name:      "messages_received_total",
			Help:      "Messages received by the processor pool, by topic.",
		}, []string{"topic"}),
		ackedC: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "pipeline",
			Name:      "messages_acked_total",
			Help:      "Messages acked after successful dispatch, by topic.",
		}, []string{"topic"}),
		nackedC: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "pipeline",
			Name:      "messages_nacked_total",
			Help:      "Messages nacked for redelivery after a transient failure, by topic.",
		}, []string{"topic"}),
		droppedC: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "pipeline",
			Name:      "messages_dropped_total",
			Help:      "Poison messages acked without retry, by topic.",
		}, []string{"topic"}),
	}
	reg.MustRegister(m.receivedC, m.ackedC, m.nackedC, m.droppedC)
	return m
}

// Each method is a no-op on a nil *Metrics so callers (and tests) may
// build a ProcessorPool without wiring a registry.
func (m *Metrics) received(topic string) {
	if m != nil {
		m.receivedC.WithLabelValues(topic).Inc()
	}
}
func (m *Metrics) acked(topic string) {
	if m != nil {
		m.ackedC.WithLabelValues(topic).Inc()
	}
}
func (m *Metrics) nacked(topic string) {
	if m != nil {
		m.nackedC.WithLabelValues(topic).Inc()
	}
}
func (m *Metrics) dropped(topic string) {
	if m != nil {
		m.droppedC.WithLabelValues(topic).Inc()
	}
}
