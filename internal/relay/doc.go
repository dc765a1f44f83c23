// Package relay routes decoded OSC messages to the socket broadcast and the mirror peer.
// Messages pass the address whitelist first, then their arguments are normalized into
// plain values. The broadcast and the mirror are separate failure domains: a mirror
// error is logged and never reaches the caller or delays the broadcast.
package relay
