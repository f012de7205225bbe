package metric

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidSpec is returned for bounds or volatility that cannot be simulated.
var ErrInvalidSpec = errors.New("invalid metric spec")

// Spec describes a simulated metric. It is immutable after load.
type Spec struct {
	// Min is the inclusive lower bound of the metric value.
	Min float64 `json:"min" yaml:"min"`
	// Max is the inclusive upper bound of the metric value.
	Max float64 `json:"max" yaml:"max"`
	// Unit is the display unit, e.g. "%" or "ms".
	Unit string `json:"unit" yaml:"unit"`
	// Volatility is the largest change a single tick may apply.
	Volatility float64 `json:"volatility" yaml:"volatility"`
}

// Validate checks that the bounds are finite with min < max and that
// volatility is a finite non-negative number.
func (s Spec) Validate() error {
	for _, v := range []float64{s.Min, s.Max, s.Volatility} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: values must be finite", ErrInvalidSpec)
		}
	}

	if s.Min >= s.Max {
		return fmt.Errorf("%w: min %g must be below max %g", ErrInvalidSpec, s.Min, s.Max)
	}

	if s.Volatility < 0 {
		return fmt.Errorf("%w: volatility %g must not be negative", ErrInvalidSpec, s.Volatility)
	}

	return nil
}

// Clamp saturates v into [Min, Max].
func (s Spec) Clamp(v float64) float64 {
	if v < s.Min {
		return s.Min
	}

	if v > s.Max {
		return s.Max
	}

	return v
}

// Reading is a metric value together with its unit.
type Reading struct {
	// Value is the current metric value.
	Value float64 `json:"value"`
	// Unit is the display unit of Value.
	Unit string `json:"unit"`
}

// Snapshot maps metric names to their readings.
type Snapshot map[string]Reading

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}

	cloned := make(Snapshot, len(s))
	for name, reading := range s {
		cloned[name] = reading
	}

	return cloned
}

// Names returns the metric names in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
