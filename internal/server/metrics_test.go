package server

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistin/proxyspace-hydra/internal/metrics"
)

func TestMetricsServer_ServesBridgeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	bridgeMetrics := metrics.NewBridgeMetrics(reg)
	bridgeMetrics.RecordStatus("connecting")
	bridgeMetrics.RecordReconnect()

	srv := NewMetricsServer("127.0.0.1:0", reg, testLogger())
	assert.Nil(t, srv.Addr())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hydra_bridge_status_transitions_total")

	resp, err = http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsServer_ListenError(t *testing.T) {
	srv := NewMetricsServer("127.0.0.1:-1", nil, testLogger())
	assert.Error(t, srv.Start())
}
