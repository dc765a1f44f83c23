// Package server implements the OSC UDP listener and the HTTP server of the relay.
// The UDP side decodes datagrams on a single processing goroutine so messages are
// routed in arrival order. The HTTP side upgrades socket clients into the broadcast
// hub and exposes health, statistics and Prometheus endpoints. MetricsServer serves
// only /metrics and /health, for the monitor process.
package server
