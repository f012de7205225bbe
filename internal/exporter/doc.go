// Package exporter publishes alarm transitions to Kafka.
//
// The Exporter is an alarm subscriber of the fan-out hub. Receiving an update
// only enqueues it; Run writes the new history entries on its own goroutine,
// oldest first, keyed by metric name.
package exporter
