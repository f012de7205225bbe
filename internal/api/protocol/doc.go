// Package protocol defines the JSON message envelope shared by the WebSocket
// and gRPC watch transports, dispatches inbound commands to the engine and
// provides Outbox, a bounded hub subscriber that queues envelopes for a
// transport writer.
package protocol
