// Package threshold holds per-metric warning/critical boundaries and evaluates
// values against them.
package threshold
