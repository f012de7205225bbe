package engine

import "errors"

var (
	// ErrUnknownMetric is returned when a command names a metric that is not simulated.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrMetricExists is returned when adding a metric that is already simulated.
	ErrMetricExists = errors.New("metric already exists")
	// ErrInvalidFraction is returned for a spike fraction that is not a finite number.
	ErrInvalidFraction = errors.New("spike fraction must be a finite number")
)
