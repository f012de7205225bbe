package alarm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/threshold-alarm/internal/domain/alarm"
)

// recordingPublisher stores every published update.
type recordingPublisher struct {
	// mu guards updates.
	mu sync.Mutex
	// updates are the published payloads in order.
	updates []domain.Update
}

// PublishAlarms records the update.
func (p *recordingPublisher) PublishAlarms(_ context.Context, update domain.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.updates = append(p.updates, update)
}

// count returns the number of published updates.
func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.updates)
}

// fixedClock returns a clock advancing one second per call.
func fixedClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0

	return func() time.Time {
		calls++

		return base.Add(time.Duration(calls) * time.Second)
	}
}

// TestManager_CPUScenario feeds 60 → 75 → 95 → 65 through the warning=70/critical=90 pair.
func TestManager_CPUScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pub := new(recordingPublisher)
	m := NewManager(50, WithPublisher(pub), WithClock(fixedClock()), WithMetrics(map[string]string{"cpu": "%"}))
	pair := domain.ThresholdPair{Warning: 70, Critical: 90}

	var statuses []domain.Status

	for _, v := range []float64{60, 75, 95, 65} {
		status := pair.Evaluate(v)
		m.Apply(ctx, "cpu", v, status, "%")

		record, ok := m.Status("cpu")
		require.True(t, ok)
		require.Equal(t, status, record.Status)

		statuses = append(statuses, record.Status)
	}

	require.Equal(t,
		[]domain.Status{domain.StatusNormal, domain.StatusWarning, domain.StatusCritical, domain.StatusNormal},
		statuses)

	history := m.History()
	require.Len(t, history, 2)
	require.Equal(t, domain.StatusCritical, history[0].Status)
	require.InDelta(t, 95.0, history[0].Value, 0)
	require.Equal(t, "CPU critical: 95.00%", history[0].Message)
	require.Equal(t, domain.StatusWarning, history[1].Status)
	require.Greater(t, history[0].Seq, history[1].Seq)

	// Three transitions, three notifications; the initial normal reading is a no-op.
	require.Equal(t, 3, pub.count())

	last := pub.updates[2]
	require.Equal(t, domain.StatusNormal, last.Alarms["cpu"].Status)
	require.InDelta(t, 65.0, last.Alarms["cpu"].Value, 0)
	require.NotNil(t, last.Alarms["cpu"].LastTriggered)
	require.Equal(t, domain.StatusNormal, last.Highest)
}

// TestManager_NoopKeepsValue verifies an unchanged status leaves the record and history alone.
func TestManager_NoopKeepsValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pub := new(recordingPublisher)
	m := NewManager(10, WithPublisher(pub))

	require.True(t, m.Apply(ctx, "cpu", 75, domain.StatusWarning, "%"))
	require.False(t, m.Apply(ctx, "cpu", 80, domain.StatusWarning, "%"))

	record, _ := m.Status("cpu")
	require.InDelta(t, 75.0, record.Value, 0)
	require.Len(t, m.History(), 1)
	require.Equal(t, 1, pub.count())
}

// TestManager_HistoryCap checks eviction of the oldest entries and newest-first order.
func TestManager_HistoryCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(5, WithClock(fixedClock()))

	for i := range 12 {
		status := domain.StatusWarning
		if i%2 == 1 {
			status = domain.StatusCritical
		}

		m.Apply(ctx, "latency", float64(i), status, "ms")

		require.LessOrEqual(t, len(m.History()), 5)
	}

	history := m.History()
	require.Len(t, history, 5)

	for i, entry := range history {
		require.InDelta(t, float64(11-i), entry.Value, 0, "entry %d", i)
		require.Equal(t, uint64(12-i), entry.Seq)
	}

	for i := 1; i < len(history); i++ {
		require.True(t, history[i-1].Timestamp.After(history[i].Timestamp))
	}
}

// TestManager_HighestSeverity reduces over all tracked records.
func TestManager_HighestSeverity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cases := []struct {
		statuses []domain.Status
		want     domain.Status
	}{
		{statuses: nil, want: domain.StatusNormal},
		{statuses: []domain.Status{domain.StatusNormal, domain.StatusNormal}, want: domain.StatusNormal},
		{statuses: []domain.Status{domain.StatusNormal, domain.StatusWarning}, want: domain.StatusWarning},
		{statuses: []domain.Status{domain.StatusWarning, domain.StatusCritical, domain.StatusNormal}, want: domain.StatusCritical},
		{statuses: []domain.Status{domain.StatusCritical, domain.StatusCritical}, want: domain.StatusCritical},
	}

	for i, tc := range cases {
		m := NewManager(10)
		for j, status := range tc.statuses {
			m.Apply(ctx, fmt.Sprintf("m%d", j), 1, status, "")
		}

		require.Equal(t, tc.want, m.HighestSeverity(), "case %d", i)
		require.Equal(t, tc.want, m.Snapshot().Highest, "case %d", i)
	}
}

// TestManager_ClearAll resets every metric without producing history.
func TestManager_ClearAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pub := new(recordingPublisher)
	m := NewManager(10, WithPublisher(pub))

	m.Apply(ctx, "cpu", 95, domain.StatusCritical, "%")
	m.Apply(ctx, "memory", 70, domain.StatusWarning, "%")
	require.Len(t, m.History(), 2)

	m.ClearAll(ctx)

	for _, name := range []string{"cpu", "memory"} {
		record, ok := m.Status(name)
		require.True(t, ok)
		require.Equal(t, domain.StatusNormal, record.Status)
		require.Nil(t, record.LastTriggered)
	}

	require.Len(t, m.History(), 2)
	require.Equal(t, domain.StatusNormal, m.HighestSeverity())
	require.Equal(t, 3, pub.count())

	// A fresh critical reading after a clear is a new transition.
	require.True(t, m.Apply(ctx, "cpu", 96, domain.StatusCritical, "%"))
	require.Len(t, m.History(), 3)
}

// TestManager_UnknownMetricIsTracked verifies lazy creation and snapshot isolation.
func TestManager_UnknownMetricIsTracked(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(0, WithMetrics(map[string]string{"cpu": "%"}))

	_, ok := m.Status("disk")
	require.False(t, ok)

	m.Apply(ctx, "disk", 99, domain.StatusCritical, "GB")

	record, ok := m.Status("disk")
	require.True(t, ok)
	require.Equal(t, "GB", record.Unit)
	require.Equal(t, []string{"cpu", "disk"}, m.Metrics())

	snapshot := m.Statuses()
	*snapshot["disk"].LastTriggered = time.Time{}

	record, _ = m.Status("disk")
	require.False(t, record.LastTriggered.IsZero())
}
