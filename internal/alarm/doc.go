// Package alarm implements the per-metric alarm state machine.
//
// A Manager keeps one Record per metric and a bounded, newest-first history of
// transitions into non-normal statuses. Every status change, and every
// operator clear, is pushed to a Publisher.
package alarm
