package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances on separate registries must not collide
	m1 := NewMetrics(prometheus.NewRegistry())
	m2 := NewMetrics(prometheus.NewRegistry())

	m1.RecordRouted()
	m1.RecordRouted()
	m2.RecordFiltered()

	assert.Equal(t, 2.0, testutil.ToFloat64(m1.MessagesRouted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.MessagesRouted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m2.MessagesFiltered))
}

func TestMetrics_Broadcast(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordBroadcast(3)
	m.RecordBroadcast(0)
	m.RecordBroadcastSkip("not_open")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastFrames))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BroadcastDeliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastSkipped.WithLabelValues("not_open")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	var b *BridgeMetrics

	assert.NotPanics(t, func() {
		m.RecordPacketReceived()
		m.RecordMirrorFailure()
		m.RecordHTTPRequest("GET", "/", "200", 0.1)
		b.RecordStatus("connected")
		b.RecordReconnect()
	})
}

func TestBridgeMetrics_Registration(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBridgeMetrics(reg)
	b.RecordStatus("connecting")
	b.RecordUpdate("level")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "hydra_bridge_status_transitions_total")
	assert.Contains(t, names, "hydra_bridge_value_updates_total")
}
