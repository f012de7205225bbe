// Package alarm contains the domain types of the threshold alarm pipeline.
//
// It defines Status (normal, warning, critical), ThresholdPair, the per-metric
// Record, the HistoryEntry produced on every transition into a non-normal
// status, and Update, the payload pushed to alarm subscribers. Clone helpers
// keep internal state from leaking by reference.
package alarm
