// Package mirror sends re-tagged OSC messages to a single fixed UDP peer.
// Sends are fire-and-forget: each write has a deadline and is never retried.
package mirror
