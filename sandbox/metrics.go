package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resolve outcomes
const (
	outcomeCreated     = "created"
	outcomeReconnected = "reconnected"
	outcomeError       = "error"
)

// Metrics counts broker activity. A nil *Metrics records nothing.
type Metrics struct {
	resolves   *prometheus.CounterVec
	operations *prometheus.CounterVec
}

// NewMetrics creates the broker counters and registers them with reg
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandboxbroker",
			Name:      "resolves_total",
			Help:      "Sandbox resolutions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandboxbroker",
			Name:      "operations_total",
			Help:      "Broker operations by name and status.",
		}, []string{"operation", "status"}),
	}
	reg.MustRegister(m.resolves, m.operations)
	return m
}

func (m *Metrics) observeResolve(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) observeOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
}
