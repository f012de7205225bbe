// Package engine is the control surface of the alarm service.
//
// The engine owns the threshold store, the simulator, the alarm manager and
// the fan-out hub. Every mutating command runs under a single lock, so
// ticks and commands arriving from different transports never interleave.
package engine
