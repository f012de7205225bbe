// Package ws serves the WebSocket endpoint of the alarm service.
//
// Each connection is registered in the hub as a protocol.Outbox. A write pump
// drains the outbox onto the socket; the read pump decodes commands and
// queues replies on the same outbox so a connection has a single writer.
package ws
