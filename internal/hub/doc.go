// Package hub fans metric and alarm updates out to subscribers.
//
// The hub keeps two independent subscriber sets. A subscriber whose delivery
// fails (an error or a panic) is removed from the set it failed on; every
// other subscriber still receives the same update. Delivery calls must be
// bounded: transport adapters enqueue into a buffer and fail fast when it is
// full instead of blocking the publisher.
package hub
