// Package simulator produces time-varying metric values.
//
// Every tracked metric performs a bounded random walk: on each tick the trend
// may reverse, a random step up to the metric volatility is taken in the trend
// direction, and the result saturates at the metric bounds. The simulator does
// not own a timer; an external scheduler calls Tick.
package simulator
