// Package rest provides the HTTP surface of the alarm service: JSON control
// endpoints under /api/v1, the WebSocket endpoint, Prometheus metrics and
// health checks.
package rest
