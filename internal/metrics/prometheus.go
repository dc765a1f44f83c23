package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the OSC relay
type Metrics struct {
	// UDP packet metrics
	PacketsReceived prometheus.Counter
	DecodeErrors    prometheus.Counter
	PacketsDropped  prometheus.Counter
	QueueSize       prometheus.Gauge

	// Routing metrics
	MessagesRouted   prometheus.Counter
	MessagesFiltered prometheus.Counter

	// Broadcast metrics
	BroadcastFrames     prometheus.Counter
	BroadcastDeliveries prometheus.Counter
	BroadcastSkipped    *prometheus.CounterVec
	BroadcastErrors     prometheus.Counter
	SessionsActive      prometheus.Gauge
	SessionsOpened      prometheus.Counter
	SessionsClosed      prometheus.Counter

	// Mirror metrics
	MirrorSent     prometheus.Counter
	MirrorFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates the relay metrics and registers them on reg.
// A nil registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP packet metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_osc_packets_received_total",
			Help: "Total number of OSC datagrams received",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_osc_decode_errors_total",
			Help: "Total number of datagrams that failed OSC decoding",
		}),
		PacketsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_osc_packets_dropped_total",
			Help: "Total number of datagrams dropped because the processing queue was full",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hydra_osc_queue_size",
			Help: "Current number of datagrams waiting for processing",
		}),

		// Routing metrics
		MessagesRouted: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_messages_routed_total",
			Help: "Total number of OSC messages that passed the whitelist",
		}),
		MessagesFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_messages_filtered_total",
			Help: "Total number of OSC messages rejected by the whitelist",
		}),

		// Broadcast metrics
		BroadcastFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_broadcast_frames_total",
			Help: "Total number of frames broadcast to socket sessions",
		}),
		BroadcastDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_broadcast_deliveries_total",
			Help: "Total number of frames queued to individual sessions",
		}),
		BroadcastSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydra_broadcast_skipped_total",
			Help: "Total number of per-session deliveries skipped",
		}, []string{"reason"}),
		BroadcastErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_broadcast_errors_total",
			Help: "Total number of frames that could not be encoded for broadcast",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hydra_sessions_active",
			Help: "Current number of connected socket sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_sessions_opened_total",
			Help: "Total number of socket sessions accepted",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_sessions_closed_total",
			Help: "Total number of socket sessions closed",
		}),

		// Mirror metrics
		MirrorSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_mirror_sent_total",
			Help: "Total number of messages forwarded to the mirror peer",
		}),
		MirrorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydra_mirror_failures_total",
			Help: "Total number of failed forwards to the mirror peer",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydra_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hydra_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydra_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

// RecordDecodeError increments the decode errors counter
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// RecordPacketDropped increments the dropped packets counter
func (m *Metrics) RecordPacketDropped() {
	if m == nil {
		return
	}
	m.PacketsDropped.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordRouted increments the routed messages counter
func (m *Metrics) RecordRouted() {
	if m == nil {
		return
	}
	m.MessagesRouted.Inc()
}

// RecordFiltered increments the filtered messages counter
func (m *Metrics) RecordFiltered() {
	if m == nil {
		return
	}
	m.MessagesFiltered.Inc()
}

// RecordBroadcast records one broadcast frame and the number of sessions it reached
func (m *Metrics) RecordBroadcast(delivered int) {
	if m == nil {
		return
	}
	m.BroadcastFrames.Inc()
	m.BroadcastDeliveries.Add(float64(delivered))
}

// RecordBroadcastSkip records a session skipped during broadcast
func (m *Metrics) RecordBroadcastSkip(reason string) {
	if m == nil {
		return
	}
	m.BroadcastSkipped.WithLabelValues(reason).Inc()
}

// RecordBroadcastError increments the broadcast encode errors counter
func (m *Metrics) RecordBroadcastError() {
	if m == nil {
		return
	}
	m.BroadcastErrors.Inc()
}

// RecordSessionOpened records an accepted session and the current session count
func (m *Metrics) RecordSessionOpened(active int) {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsActive.Set(float64(active))
}

// RecordSessionClosed records a closed session and the current session count
func (m *Metrics) RecordSessionClosed(active int) {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
	m.SessionsActive.Set(float64(active))
}

// RecordMirrorSent increments the mirror sent counter
func (m *Metrics) RecordMirrorSent() {
	if m == nil {
		return
	}
	m.MirrorSent.Inc()
}

// RecordMirrorFailure increments the mirror failures counter
func (m *Metrics) RecordMirrorFailure() {
	if m == nil {
		return
	}
	m.MirrorFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
