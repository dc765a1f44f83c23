// Package broadcast manages the WebSocket sessions that receive relayed frames.
// Every session owns a bounded send queue drained by its own write goroutine, so a
// broadcast never waits on a slow or dead connection: sessions that are not open, or
// whose queue is full, are skipped for that frame.
package broadcast
