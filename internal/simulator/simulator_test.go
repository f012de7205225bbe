package simulator

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
)

// sequenceRand returns the configured values in order, cycling when exhausted.
type sequenceRand struct {
	// values are returned by successive Float64 calls.
	values []float64
	// next is the index of the next value.
	next int
}

// Float64 returns the next value of the sequence.
func (r *sequenceRand) Float64() float64 {
	v := r.values[r.next%len(r.values)]
	r.next++

	return v
}

// thresholdEvaluator evaluates every metric against one pair.
type thresholdEvaluator struct {
	// pair is used for all metrics.
	pair alarm.ThresholdPair
}

// Evaluate maps value to a status using the configured pair.
func (e thresholdEvaluator) Evaluate(_ string, value float64) alarm.Status {
	return e.pair.Evaluate(value)
}

// applied is one recorded Apply call.
type applied struct {
	metric string
	value  float64
	status alarm.Status
	unit   string
}

// recordingSink records every Apply call.
type recordingSink struct {
	// mu guards calls.
	mu sync.Mutex
	// calls are the recorded Apply arguments in call order.
	calls []applied
}

// Apply records the call and reports a change when the status differs from the previous call.
func (r *recordingSink) Apply(_ context.Context, metric string, value float64, status alarm.Status, unit string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := len(r.calls) == 0 || r.calls[len(r.calls)-1].status != status
	r.calls = append(r.calls, applied{metric: metric, value: value, status: status, unit: unit})

	return changed
}

func testSpecs() map[string]metric.Spec {
	return map[string]metric.Spec{
		"cpu":       {Min: 0, Max: 100, Unit: "%", Volatility: 5},
		"bandwidth": {Min: 0, Max: 1000, Unit: "Mbps", Volatility: 50},
		"latency":   {Min: 10, Max: 500, Unit: "ms", Volatility: 10},
	}
}

// TestTick_StaysWithinBounds runs many seeded ticks and checks every value stays within bounds.
func TestTick_StaysWithinBounds(t *testing.T) {
	t.Parallel()

	specs := testSpecs()
	sink := new(recordingSink)
	s := New(specs, thresholdEvaluator{pair: alarm.ThresholdPair{Warning: 70, Critical: 90}}, sink, WithSeed(42))

	for range 5000 {
		update := s.Tick(context.Background())
		require.Len(t, update, len(specs))

		for name, reading := range update {
			spec := specs[name]
			require.GreaterOrEqual(t, reading.Value, spec.Min, name)
			require.LessOrEqual(t, reading.Value, spec.Max, name)
			require.Equal(t, spec.Unit, reading.Unit)
		}
	}

	require.Len(t, sink.calls, 5000*len(specs))
}

// TestTick_Deterministic verifies two simulators with the same seed produce the same walk.
func TestTick_Deterministic(t *testing.T) {
	t.Parallel()

	eval := thresholdEvaluator{pair: alarm.ThresholdPair{Warning: 70, Critical: 90}}
	a := New(testSpecs(), eval, new(recordingSink), WithSeed(7))
	b := New(testSpecs(), eval, new(recordingSink), WithSeed(7))

	for range 100 {
		require.Equal(t, a.Tick(context.Background()), b.Tick(context.Background()))
	}
}

// TestTick_TrendAndSaturation drives a single metric with a scripted source.
func TestTick_TrendAndSaturation(t *testing.T) {
	t.Parallel()

	specs := map[string]metric.Spec{"cpu": {Min: 0, Max: 100, Unit: "%", Volatility: 10}}
	sink := new(recordingSink)

	// Each tick consumes two values: the flip draw, then the magnitude draw.
	rnd := &sequenceRand{values: []float64{
		0.9, 0.5, // no flip, +5
		0.9, 1.0, // no flip, +10
		0.1, 0.5, // flip, -5
		0.1, 1.0, // flip back, +10
	}}

	s := New(specs, thresholdEvaluator{pair: alarm.ThresholdPair{Warning: 12, Critical: 14}}, sink, WithRand(rnd))

	want := []float64{5, 15, 10, 20}
	for _, v := range want {
		update := s.Tick(context.Background())
		require.InDelta(t, v, update["cpu"].Value, 1e-9)
	}

	require.Equal(t, alarm.StatusNormal, sink.calls[0].status)
	require.Equal(t, alarm.StatusCritical, sink.calls[1].status)
	require.Equal(t, alarm.StatusNormal, sink.calls[2].status)
	require.Equal(t, alarm.StatusCritical, sink.calls[3].status)

	// Downward walk saturates at the minimum instead of reflecting.
	down := &sequenceRand{values: []float64{0.1, 1.0, 0.9, 1.0}}
	s = New(specs, thresholdEvaluator{pair: alarm.ThresholdPair{Warning: 70, Critical: 90}}, sink, WithRand(down))

	for range 10 {
		update := s.Tick(context.Background())
		require.GreaterOrEqual(t, update["cpu"].Value, 0.0)
	}

	reading, ok := s.Value("cpu")
	require.True(t, ok)
	require.InDelta(t, 0.0, reading.Value, 0)
}

// TestSpike sets the value to fraction × max and runs the evaluation path for that metric only.
func TestSpike(t *testing.T) {
	t.Parallel()

	sink := new(recordingSink)
	s := New(testSpecs(), thresholdEvaluator{pair: alarm.ThresholdPair{Warning: 700, Critical: 900}}, sink, WithSeed(1))

	reading, ok := s.Spike(context.Background(), "bandwidth", DefaultSpikeFraction)
	require.True(t, ok)
	require.InDelta(t, 900.0, reading.Value, 1e-9)
	require.Equal(t, "Mbps", reading.Unit)

	require.Len(t, sink.calls, 1)
	require.Equal(t, "bandwidth", sink.calls[0].metric)
	require.Equal(t, alarm.StatusCritical, sink.calls[0].status)

	current, _ := s.Value("bandwidth")
	require.InDelta(t, 900.0, current.Value, 1e-9)

	_, ok = s.Spike(context.Background(), "disk", 0.9)
	require.False(t, ok)

	_, ok = s.Spike(context.Background(), "cpu", math.NaN())
	require.False(t, ok)

	// Fractions above 1 saturate at the maximum.
	reading, ok = s.Spike(context.Background(), "cpu", 1.5)
	require.True(t, ok)
	require.InDelta(t, 100.0, reading.Value, 0)

	require.Len(t, sink.calls, 2)
}

// TestTrack adds metrics at runtime and reports duplicates.
func TestTrack(t *testing.T) {
	t.Parallel()

	s := New(testSpecs(), thresholdEvaluator{}, new(recordingSink), WithSeed(3))

	require.False(t, s.Track("cpu", metric.Spec{Max: 1}))
	require.True(t, s.Track("disk", metric.Spec{Min: 5, Max: 50, Unit: "GB", Volatility: 1}))

	reading, ok := s.Value("disk")
	require.True(t, ok)
	require.InDelta(t, 5.0, reading.Value, 0)

	spec, ok := s.Spec("disk")
	require.True(t, ok)
	require.Equal(t, "GB", spec.Unit)

	require.Len(t, s.Values(), 4)
	require.Len(t, s.Tick(context.Background()), 4)
}
