package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BridgeMetrics contains Prometheus metrics for the value bridge
type BridgeMetrics struct {
	StatusTransitions *prometheus.CounterVec
	FramesReceived    prometheus.Counter
	FramesRejected    *prometheus.CounterVec
	ValueUpdates      *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
}

// NewBridgeMetrics creates the bridge metrics and registers them on reg
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	factory := promauto.With(reg)

	return &BridgeMetrics{
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydra_bridge_status_transitions_total",
			Help: "Total number of connection status transitions by target status",
		}, []string{"status"}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_bridge_frames_received_total",
			Help: "Total number of frames received from the relay",
		}),
		FramesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydra_bridge_frames_rejected_total",
			Help: "Total number of frames that did not update an endpoint",
		}, []string{"reason"}),
		ValueUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydra_bridge_value_updates_total",
			Help: "Total number of endpoint value updates",
		}, []string{"key"}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_bridge_reconnect_attempts_total",
			Help: "Total number of scheduled reconnection attempts",
		}),
	}
}

// RecordStatus records a status transition
func (m *BridgeMetrics) RecordStatus(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// RecordFrame increments the frames received counter
func (m *BridgeMetrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordRejected records a frame that was dropped
func (m *BridgeMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.FramesRejected.WithLabelValues(reason).Inc()
}

// RecordUpdate records an endpoint value update
func (m *BridgeMetrics) RecordUpdate(key string) {
	if m == nil {
		return
	}
	m.ValueUpdates.WithLabelValues(key).Inc()
}

// RecordReconnect increments the reconnect attempts counter
func (m *BridgeMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}
