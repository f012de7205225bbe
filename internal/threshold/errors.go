package threshold

import "errors"

// ErrEmptyMetric is returned when a threshold update names no metric.
var ErrEmptyMetric = errors.New("metric name must be provided")
