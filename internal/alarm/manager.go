package alarm

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/metrics"
)

// DefaultHistoryLimit is the history cap used when none is configured.
const DefaultHistoryLimit = 50

// Publisher receives the full alarm state after every change.
type Publisher interface {
	PublishAlarms(ctx context.Context, update domain.Update)
}

// Manager holds alarm records and history.
type Manager struct {
	// records is the alarm state keyed by metric name.
	records map[string]*domain.Record
	// history holds transitions, newest first, at most limit entries.
	history []domain.HistoryEntry
	// limit caps the history length.
	limit int
	// seq is the sequence number of the latest history entry.
	seq uint64
	// now returns the current time; replaced in tests.
	now func() time.Time
	// publisher is notified on every change; may be nil.
	publisher Publisher
	// mu guards records, history and seq.
	mu sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPublisher sets the component notified on changes.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// WithMetrics pre-creates normal records so snapshots list metrics before their first evaluation.
func WithMetrics(units map[string]string) Option {
	return func(m *Manager) {
		for name, unit := range units {
			m.records[name] = &domain.Record{Status: domain.StatusNormal, Unit: unit}
		}
	}
}

// NewManager creates a manager keeping at most limit history entries.
// A non-positive limit falls back to DefaultHistoryLimit.
func NewManager(limit int, opts ...Option) *Manager {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	m := &Manager{
		records: make(map[string]*domain.Record),
		history: make([]domain.HistoryEntry, 0, limit),
		limit:   limit,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Apply feeds the latest evaluation of a metric into the state machine.
// An unchanged status is a no-op. A changed status updates the record,
// records a history entry when the new status is an alarm, and notifies the
// publisher. Unknown metrics start as normal.
func (m *Manager) Apply(ctx context.Context, metric string, value float64, status domain.Status, unit string) bool {
	m.mu.Lock()

	record, ok := m.records[metric]
	if !ok {
		record = &domain.Record{Status: domain.StatusNormal, Unit: unit}
		m.records[metric] = record
	}

	if record.Status == status {
		m.mu.Unlock()

		return false
	}

	if unit == "" {
		unit = record.Unit
	}

	record.Status = status
	record.Value = value
	record.Unit = unit

	var entry *domain.HistoryEntry

	if status.IsAlarm() {
		now := m.now()
		record.LastTriggered = &now

		m.seq++
		e := domain.NewHistoryEntry(m.seq, metric, status, value, unit, now)
		m.prepend(e)
		entry = &e
	}

	update := m.snapshotLocked()
	m.mu.Unlock()

	metrics.AlarmStatus.WithLabelValues(metric).Set(float64(status.Severity()))
	metrics.TransitionsTotal.WithLabelValues(metric, status.String()).Inc()

	if entry != nil {
		logger.WarnKV(ctx, "Alarm triggered", "metric", metric, "status", status, "message", entry.Message)
	} else {
		logger.InfoKV(ctx, "Alarm cleared", "metric", metric, "value", value)
	}

	m.publish(ctx, update)

	return true
}

// ClearAll forces every metric back to normal and forgets LastTriggered.
// It is an operator override, so no history entries are produced.
func (m *Manager) ClearAll(ctx context.Context) {
	m.mu.Lock()

	for name, record := range m.records {
		record.Status = domain.StatusNormal
		record.LastTriggered = nil

		metrics.AlarmStatus.WithLabelValues(name).Set(0)
	}

	update := m.snapshotLocked()
	m.mu.Unlock()

	logger.Info(ctx, "All alarms cleared")

	m.publish(ctx, update)
}

// Status returns the record of one metric.
func (m *Manager) Status(metric string) (domain.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[metric]
	if !ok {
		return domain.Record{Status: domain.StatusNormal}, false
	}

	return *record.Clone(), true
}

// Statuses returns a copy of every record.
func (m *Manager) Statuses() map[string]domain.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.recordsLocked()
}

// HighestSeverity returns critical if any metric is critical, else warning if
// any is warning, else normal.
func (m *Manager) HighestSeverity() domain.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.highestLocked()
}

// History returns a copy of the history, newest first.
func (m *Manager) History() []domain.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.historyLocked()
}

// Snapshot returns records, history and highest severity taken atomically.
func (m *Manager) Snapshot() domain.Update {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.snapshotLocked()
}

// Metrics returns the tracked metric names in lexical order.
func (m *Manager) Metrics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (m *Manager) prepend(entry domain.HistoryEntry) {
	if len(m.history) < m.limit {
		m.history = append(m.history, domain.HistoryEntry{})
	}

	copy(m.history[1:], m.history)
	m.history[0] = entry
}

func (m *Manager) publish(ctx context.Context, update domain.Update) {
	if m.publisher == nil {
		return
	}

	m.publisher.PublishAlarms(ctx, update)
}

func (m *Manager) snapshotLocked() domain.Update {
	return domain.Update{
		Alarms:  m.recordsLocked(),
		History: m.historyLocked(),
		Highest: m.highestLocked(),
	}
}

func (m *Manager) recordsLocked() map[string]domain.Record {
	result := make(map[string]domain.Record, len(m.records))
	for name, record := range m.records {
		result[name] = *record.Clone()
	}

	return result
}

func (m *Manager) historyLocked() []domain.HistoryEntry {
	result := make([]domain.HistoryEntry, len(m.history))
	copy(result, m.history)

	return result
}

func (m *Manager) highestLocked() domain.Status {
	highest := domain.StatusNormal

	for _, record := range m.records {
		if record.Status == domain.StatusCritical {
			return domain.StatusCritical
		}

		if record.Status.Severity() > highest.Severity() {
			highest = record.Status
		}
	}

	return highest
}
