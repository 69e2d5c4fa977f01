package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	stationConnections *prometheus.GaugeVec
	rpcErrors          *prometheus.CounterVec
	unmatchedReplies   *prometheus.CounterVec
	busFailures        *prometheus.CounterVec
	callsSent          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		stationConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ocpp_station_connections",
			Help: "The total number of connected charging stations",
		}, []string{"station_id"}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpp_rpc_errors",
			Help: "The total number of RPC framing and validation errors",
		}, []string{"station_id", "reason"}),
		unmatchedReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpp_unmatched_replies",
			Help: "The total number of replies with no pending call",
		}, []string{"station_id"}),
		busFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpp_bus_failures",
			Help: "The total number of message bus publish failures",
		}, []string{"station_id", "state"}),
		callsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpp_calls_sent",
			Help: "The total number of calls sent to charging stations",
		}, []string{"station_id", "action"}),
	}
	metrics.register()
	return metrics
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.stationConnections)
	prometheus.MustRegister(m.rpcErrors)
	prometheus.MustRegister(m.unmatchedReplies)
	prometheus.MustRegister(m.busFailures)
	prometheus.MustRegister(m.callsSent)
}

func (m *Metrics) IncrementStationConnections(stationID string) {
	m.stationConnections.WithLabelValues(stationID).Inc()
}

func (m *Metrics) DecrementStationConnections(stationID string) {
	m.stationConnections.WithLabelValues(stationID).Dec()
}

func (m *Metrics) IncrementRPCErrors(stationID string, reason string) {
	m.rpcErrors.WithLabelValues(stationID, reason).Inc()
}

func (m *Metrics) IncrementUnmatchedReplies(stationID string) {
	m.unmatchedReplies.WithLabelValues(stationID).Inc()
}

func (m *Metrics) IncrementBusFailures(stationID string, state string) {
	m.busFailures.WithLabelValues(stationID, state).Inc()
}

func (m *Metrics) IncrementCallsSent(stationID string, action string) {
	m.callsSent.WithLabelValues(stationID, action).Inc()
}
