package simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/metrics"
)

// TrendFlipProbability is the chance that a metric reverses its trend on a tick.
const TrendFlipProbability = 0.2

// DefaultSpikeFraction is the share of the metric maximum used by Spike when none is given.
const DefaultSpikeFraction = 0.9

// Rand is the random source of the simulator. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Evaluator maps a metric value to an alarm status.
type Evaluator interface {
	Evaluate(metric string, value float64) alarm.Status
}

// AlarmSink receives every evaluated value and reports whether the status changed.
type AlarmSink interface {
	Apply(ctx context.Context, metric string, value float64, status alarm.Status, unit string) bool
}

// state is the mutable part of a simulated metric.
type state struct {
	// spec is the static description of the metric.
	spec metric.Spec
	// value is the current reading, always within spec bounds.
	value float64
	// trend is +1 or -1.
	trend float64
}

// Simulator owns the state of every simulated metric.
type Simulator struct {
	// evaluator turns values into statuses.
	evaluator Evaluator
	// alarms receives evaluation results.
	alarms AlarmSink
	// rnd is the injectable random source.
	rnd Rand
	// states holds per-metric state keyed by name.
	states map[string]*state
	// names keeps metric names sorted so ticks are reproducible with a seeded source.
	names []string
	// mu guards states, names and rnd.
	mu sync.RWMutex
}

// Option configures the simulator.
type Option func(*Simulator)

// WithRand replaces the random source, e.g. with a seeded one in tests.
func WithRand(r Rand) Option {
	return func(s *Simulator) {
		if r != nil {
			s.rnd = r
		}
	}
}

// WithSeed uses a PCG source seeded with seed. A zero seed keeps the time-seeded default.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		if seed != 0 {
			s.rnd = rand.New(rand.NewPCG(seed, seed>>1|1)) //nolint:gosec // Simulation, not security.
		}
	}
}

// New creates a simulator tracking every metric in specs.
func New(specs map[string]metric.Spec, evaluator Evaluator, alarms AlarmSink, opts ...Option) *Simulator {
	now := uint64(time.Now().UnixNano()) //nolint:gosec // Seed only.

	s := &Simulator{
		evaluator: evaluator,
		alarms:    alarms,
		rnd:       rand.New(rand.NewPCG(now, now>>1|1)), //nolint:gosec // Simulation, not security.
		states:    make(map[string]*state, len(specs)),
	}

	for _, opt := range opts {
		opt(s)
	}

	for name, spec := range specs {
		s.Track(name, spec)
	}

	return s
}

// Track starts simulating a metric. The initial value is 0 saturated into bounds
// and the initial trend is upward. It returns false if the metric is already tracked.
func (s *Simulator) Track(name string, spec metric.Spec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[name]; ok {
		return false
	}

	s.states[name] = &state{
		spec:  spec,
		value: spec.Clamp(0),
		trend: 1,
	}

	s.names = append(s.names, name)
	sort.Strings(s.names)

	return true
}

// Tick advances every tracked metric once, evaluates and applies the new
// values, and returns the readings changed by this tick.
func (s *Simulator) Tick(ctx context.Context) metric.Snapshot {
	s.mu.Lock()

	update := make(metric.Snapshot, len(s.names))

	for _, name := range s.names {
		st := s.states[name]

		if s.rnd.Float64() < TrendFlipProbability {
			st.trend = -st.trend
		}

		delta := s.rnd.Float64() * st.spec.Volatility * st.trend
		st.value = st.spec.Clamp(st.value + delta)

		update[name] = metric.Reading{Value: st.value, Unit: st.spec.Unit}
	}

	s.mu.Unlock()

	for _, name := range update.Names() {
		s.apply(ctx, name, update[name])
	}

	metrics.TicksTotal.Inc()

	return update
}

// Spike sets metric to fraction × max (saturated into bounds) and runs the
// same evaluation path as a tick for that metric only. It returns false for
// unknown metrics and non-finite fractions.
func (s *Simulator) Spike(ctx context.Context, name string, fraction float64) (metric.Reading, bool) {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return metric.Reading{}, false
	}

	s.mu.Lock()

	st, ok := s.states[name]
	if !ok {
		s.mu.Unlock()

		return metric.Reading{}, false
	}

	st.value = st.spec.Clamp(st.spec.Max * fraction)
	reading := metric.Reading{Value: st.value, Unit: st.spec.Unit}

	s.mu.Unlock()

	s.apply(ctx, name, reading)

	return reading, true
}

// Value returns the current reading of one metric.
func (s *Simulator) Value(name string) (metric.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[name]
	if !ok {
		return metric.Reading{}, false
	}

	return metric.Reading{Value: st.value, Unit: st.spec.Unit}, true
}

// Values returns the current reading of every metric.
func (s *Simulator) Values() metric.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(metric.Snapshot, len(s.states))
	for name, st := range s.states {
		snapshot[name] = metric.Reading{Value: st.value, Unit: st.spec.Unit}
	}

	return snapshot
}

// Spec returns the static description of one metric.
func (s *Simulator) Spec(name string) (metric.Spec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[name]
	if !ok {
		return metric.Spec{}, false
	}

	return st.spec, true
}

func (s *Simulator) apply(ctx context.Context, name string, reading metric.Reading) {
	metrics.MetricValue.WithLabelValues(name).Set(reading.Value)

	status := s.evaluator.Evaluate(name, reading.Value)
	s.alarms.Apply(ctx, name, reading.Value, status, reading.Unit)
}
