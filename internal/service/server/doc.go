// Package server runs the threshold alarm service.
//
// Run loads settings, builds the alarm engine and serves it over HTTP (REST,
// WebSocket, Prometheus) and gRPC. An optional Kafka exporter receives alarm
// transitions. Everything stops when the context is canceled.
package server
