// Package alarm implements the gRPC transport for the alarm service.
//
// The service is described by a hand-written grpc.ServiceDesc whose messages
// are google.protobuf.Struct values, so clients need no generated stubs. The
// server adapts Struct payloads to engine commands, and Watch streams the
// same envelopes the WebSocket endpoint sends.
package alarm
