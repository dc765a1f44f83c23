// Package bridge turns relayed frames into smoothed, bounded values that callers
// can subscribe to.
//
// A Bridge owns a fixed set of endpoints, each bound to one control path. Every
// inbound frame for that path is clamped to the endpoint bounds and blended into
// the current value with an exponential moving average. Subscribers are called
// once with the current value when they subscribe and again after every update.
//
// The bridge keeps its socket connection alive on its own: a failed dial or a
// dropped connection schedules one reconnect attempt after a fixed delay. Stop
// cancels the pending attempt and any dial still in flight. Time is read from an
// injected clock so reconnect behavior can be driven by a mock in tests.
//
// Callbacks run outside the bridge lock and may call back into the bridge.
package bridge
