// Package protocol implements OSC packet decoding and encoding and the JSON wire frame
// broadcast to socket clients. Decoding preserves argument type tags so downstream
// stages can normalize or re-tag arguments without guessing their OSC types.
package protocol
