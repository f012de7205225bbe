// Package client is the gRPC control client of the alarm service.
//
// Client wraps a connection with per-call timeouts and typed helpers for every
// AlarmService method. The ctl binary builds its subcommands on top of it.
package client
