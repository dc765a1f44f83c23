// Package metrics defines the Prometheus metrics exported by the relay and the value bridge.
// Collectors are registered on the registerer passed to the constructors, so tests can
// build independent instances; all recording methods are safe on a nil receiver.
package metrics
