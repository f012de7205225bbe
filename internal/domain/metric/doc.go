// Package metric contains the value types describing simulated metrics:
// the static Spec loaded from configuration and the Reading/Snapshot shapes
// handed to subscribers.
package metric
