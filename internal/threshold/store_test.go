package threshold

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
)

func newTestStore() *Store {
	return NewStore(map[string]alarm.ThresholdPair{
		"cpu":       {Warning: 70, Critical: 90},
		"bandwidth": {Warning: 700, Critical: 900},
		"broken":    {Warning: 10, Critical: 5},
	})
}

// TestStore_Evaluate checks priority of the critical boundary and unknown metrics.
func TestStore_Evaluate(t *testing.T) {
	t.Parallel()

	s := newTestStore()

	require.Equal(t, alarm.StatusNormal, s.Evaluate("cpu", 69))
	require.Equal(t, alarm.StatusWarning, s.Evaluate("cpu", 70))
	require.Equal(t, alarm.StatusCritical, s.Evaluate("cpu", 90))
	require.Equal(t, alarm.StatusNormal, s.Evaluate("disk", 1e9))

	_, ok := s.Get("disk")
	require.False(t, ok, "evaluate must not create unknown metrics")

	_, ok = s.Get("broken")
	require.False(t, ok, "invalid defaults are skipped")
}

// TestStore_Set verifies that Set succeeds iff critical > warning and both are numbers.
func TestStore_Set(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	rejected := []alarm.ThresholdPair{
		{Warning: 80, Critical: 80},
		{Warning: 85, Critical: 60},
		{Warning: math.NaN(), Critical: 90},
		{Warning: 10, Critical: math.Inf(1)},
	}
	for _, pair := range rejected {
		require.ErrorIs(t, s.Set(ctx, "cpu", pair), alarm.ErrInvalidThresholds)

		got, ok := s.Get("cpu")
		require.True(t, ok)
		require.Equal(t, alarm.ThresholdPair{Warning: 70, Critical: 90}, got)
	}

	require.ErrorIs(t, s.Set(ctx, "", alarm.ThresholdPair{Warning: 1, Critical: 2}), ErrEmptyMetric)

	require.NoError(t, s.Set(ctx, "cpu", alarm.ThresholdPair{Warning: 50, Critical: 60}))
	require.Equal(t, alarm.StatusCritical, s.Evaluate("cpu", 60))

	require.NoError(t, s.Set(ctx, "disk", alarm.ThresholdPair{Warning: 1, Critical: 2}))
	require.Equal(t, alarm.StatusWarning, s.Evaluate("disk", 1.5))
}

// TestStore_ResetDefaults restores defaults without dropping runtime metrics.
func TestStore_ResetDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Set(ctx, "cpu", alarm.ThresholdPair{Warning: 1, Critical: 2}))
	require.NoError(t, s.Set(ctx, "disk", alarm.ThresholdPair{Warning: 3, Critical: 4}))

	s.ResetDefaults(ctx)

	all := s.All()
	require.Equal(t, alarm.ThresholdPair{Warning: 70, Critical: 90}, all["cpu"])
	require.Equal(t, alarm.ThresholdPair{Warning: 3, Critical: 4}, all["disk"])
	require.Len(t, all, 3)

	// The snapshot is a copy.
	all["cpu"] = alarm.ThresholdPair{}
	got, _ := s.Get("cpu")
	require.Equal(t, alarm.ThresholdPair{Warning: 70, Critical: 90}, got)
}
