package alarm

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Status is the derived state of a metric relative to its thresholds.
type Status string

// Known statuses, in increasing order of severity.
const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// ErrInvalidThresholds is returned when a threshold pair violates critical > warning
// or carries a value that is not a finite number.
var ErrInvalidThresholds = errors.New("critical threshold must be a number greater than warning")

// Severity ranks the status: 0 for normal, 1 for warning, 2 for critical.
func (s Status) Severity() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// IsAlarm reports whether the status is anything but normal.
func (s Status) IsAlarm() bool {
	return s == StatusWarning || s == StatusCritical
}

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a case-insensitive name to a Status.
func ParseStatus(name string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(name))) {
	case StatusNormal:
		return StatusNormal, nil
	case StatusWarning:
		return StatusWarning, nil
	case StatusCritical:
		return StatusCritical, nil
	default:
		return StatusNormal, fmt.Errorf("unknown status %q", name)
	}
}

// ThresholdPair holds the warning and critical boundaries of one metric.
type ThresholdPair struct {
	// Warning is the lowest value evaluated as warning.
	Warning float64 `json:"warning" yaml:"warning"`
	// Critical is the lowest value evaluated as critical.
	Critical float64 `json:"critical" yaml:"critical"`
}

// Validate checks that both boundaries are finite and critical > warning.
func (p ThresholdPair) Validate() error {
	if !isFinite(p.Warning) || !isFinite(p.Critical) || p.Critical <= p.Warning {
		return ErrInvalidThresholds
	}

	return nil
}

// Evaluate maps a value to a status. The critical boundary wins ties.
func (p ThresholdPair) Evaluate(value float64) Status {
	switch {
	case value >= p.Critical:
		return StatusCritical
	case value >= p.Warning:
		return StatusWarning
	default:
		return StatusNormal
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
