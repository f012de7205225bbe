package alarm

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestThresholdPairEvaluate checks boundaries, including the tie at the critical value.
func TestThresholdPairEvaluate(t *testing.T) {
	t.Parallel()

	pair := ThresholdPair{Warning: 70, Critical: 90}

	cases := map[float64]Status{
		0:     StatusNormal,
		69.99: StatusNormal,
		70:    StatusWarning,
		89.99: StatusWarning,
		90:    StatusCritical,
		100:   StatusCritical,
	}
	for value, want := range cases {
		require.Equal(t, want, pair.Evaluate(value), value)
	}
}

// TestThresholdPairValidate covers ordering and non-finite inputs.
func TestThresholdPairValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, ThresholdPair{Warning: 70, Critical: 90}.Validate())
	require.ErrorIs(t, ThresholdPair{Warning: 90, Critical: 90}.Validate(), ErrInvalidThresholds)
	require.ErrorIs(t, ThresholdPair{Warning: 95, Critical: 90}.Validate(), ErrInvalidThresholds)
	require.ErrorIs(t, ThresholdPair{Warning: math.NaN(), Critical: 90}.Validate(), ErrInvalidThresholds)
	require.ErrorIs(t, ThresholdPair{Warning: 1, Critical: math.Inf(1)}.Validate(), ErrInvalidThresholds)
}

// TestStatusSeverity verifies the priority order used by severity reduction.
func TestStatusSeverity(t *testing.T) {
	t.Parallel()

	require.Less(t, StatusNormal.Severity(), StatusWarning.Severity())
	require.Less(t, StatusWarning.Severity(), StatusCritical.Severity())
	require.False(t, StatusNormal.IsAlarm())
	require.True(t, StatusWarning.IsAlarm())

	s, err := ParseStatus(" Critical")
	require.NoError(t, err)
	require.Equal(t, StatusCritical, s)

	_, err = ParseStatus("major")
	require.Error(t, err)
}

// TestRecordClone verifies LastTriggered is deep-copied and nil is handled.
func TestRecordClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Record)(nil).Clone())

	ts := time.Now()
	r := &Record{Status: StatusWarning, Value: 75, Unit: "%", LastTriggered: &ts}
	c := r.Clone()

	require.Equal(t, r, c)
	require.NotSame(t, r.LastTriggered, c.LastTriggered)
}

// TestNewHistoryEntry checks the rendered message.
func TestNewHistoryEntry(t *testing.T) {
	t.Parallel()

	e := NewHistoryEntry(7, "cpu", StatusCritical, 95, "%", time.Unix(0, 0))
	require.Equal(t, "CPU critical: 95.00%", e.Message)
	require.Equal(t, uint64(7), e.Seq)
}
