package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/metrics"
)

// MetricSubscriber can receive metric updates. Updates are shared between
// subscribers and must be treated as read-only.
type MetricSubscriber interface {
	ID() string
	ReceiveMetricUpdate(update metric.Snapshot) error
}

// AlarmSubscriber can receive alarm updates. Updates are shared between
// subscribers and must be treated as read-only.
type AlarmSubscriber interface {
	ID() string
	ReceiveAlarmUpdate(update alarm.Update) error
}

// Subscriber receives both kinds of updates.
type Subscriber interface {
	MetricSubscriber
	AlarmSubscriber
}

// MetricSource provides the snapshot sent to new metric subscribers.
type MetricSource interface {
	Values() metric.Snapshot
}

// AlarmSource provides the snapshot sent to new alarm subscribers.
type AlarmSource interface {
	Snapshot() alarm.Update
}

var (
	// ErrNilSubscriber is returned when subscribing a nil subscriber.
	ErrNilSubscriber = errors.New("subscriber must be provided")
	// ErrNotBound is returned when subscribing before Bind.
	ErrNotBound = errors.New("hub has no snapshot sources")
	// errPanic wraps a panic raised by a subscriber.
	errPanic = errors.New("subscriber panicked")
)

// Hub holds the metric and alarm subscriber sets.
type Hub struct {
	// metricSubs is the metric-update set keyed by subscriber id.
	metricSubs map[string]MetricSubscriber
	// alarmSubs is the alarm-update set keyed by subscriber id.
	alarmSubs map[string]AlarmSubscriber
	// metricSource supplies the snapshot for new metric subscribers.
	metricSource MetricSource
	// alarmSource supplies the snapshot for new alarm subscribers.
	alarmSource AlarmSource
	// mu guards both sets and the sources.
	mu sync.RWMutex
}

// New creates an empty hub. Call Bind before subscribing.
func New() *Hub {
	return &Hub{
		metricSubs: make(map[string]MetricSubscriber),
		alarmSubs:  make(map[string]AlarmSubscriber),
	}
}

// Bind sets the sources used for the initial snapshot of new subscribers.
func (h *Hub) Bind(metricSource MetricSource, alarmSource AlarmSource) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metricSource = metricSource
	h.alarmSource = alarmSource
}

// SubscribeMetrics delivers the current metric snapshot to sub and adds it to
// the metric set. A subscriber that fails the snapshot is not added.
func (h *Hub) SubscribeMetrics(ctx context.Context, sub MetricSubscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.metricSource == nil {
		return ErrNotBound
	}

	if err := deliver(func() error { return sub.ReceiveMetricUpdate(h.metricSource.Values()) }); err != nil {
		return fmt.Errorf("deliver metric snapshot: %w", err)
	}

	h.metricSubs[sub.ID()] = sub
	metrics.Subscribers.WithLabelValues(metrics.SetMetrics).Set(float64(len(h.metricSubs)))

	logger.DebugKV(ctx, "Metric subscriber added", "subscriber_id", sub.ID(), "total", len(h.metricSubs))

	return nil
}

// SubscribeAlarms delivers the current alarm statuses and history to sub and
// adds it to the alarm set. A subscriber that fails the snapshot is not added.
func (h *Hub) SubscribeAlarms(ctx context.Context, sub AlarmSubscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.alarmSource == nil {
		return ErrNotBound
	}

	if err := deliver(func() error { return sub.ReceiveAlarmUpdate(h.alarmSource.Snapshot()) }); err != nil {
		return fmt.Errorf("deliver alarm snapshot: %w", err)
	}

	h.alarmSubs[sub.ID()] = sub
	metrics.Subscribers.WithLabelValues(metrics.SetAlarms).Set(float64(len(h.alarmSubs)))

	logger.DebugKV(ctx, "Alarm subscriber added", "subscriber_id", sub.ID(), "total", len(h.alarmSubs))

	return nil
}

// UnsubscribeMetrics removes the subscriber with the given id. Removing an
// absent subscriber is a no-op.
func (h *Hub) UnsubscribeMetrics(ctx context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.metricSubs[id]; !ok {
		return
	}

	delete(h.metricSubs, id)
	metrics.Subscribers.WithLabelValues(metrics.SetMetrics).Set(float64(len(h.metricSubs)))

	logger.DebugKV(ctx, "Metric subscriber removed", "subscriber_id", id, "total", len(h.metricSubs))
}

// UnsubscribeAlarms removes the subscriber with the given id. Removing an
// absent subscriber is a no-op.
func (h *Hub) UnsubscribeAlarms(ctx context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.alarmSubs[id]; !ok {
		return
	}

	delete(h.alarmSubs, id)
	metrics.Subscribers.WithLabelValues(metrics.SetAlarms).Set(float64(len(h.alarmSubs)))

	logger.DebugKV(ctx, "Alarm subscriber removed", "subscriber_id", id, "total", len(h.alarmSubs))
}

// PublishMetrics delivers update to every metric subscriber. Subscribers whose
// delivery fails are removed from the metric set.
func (h *Hub) PublishMetrics(ctx context.Context, update metric.Snapshot) {
	h.mu.RLock()
	subs := make([]MetricSubscriber, 0, len(h.metricSubs))
	for _, sub := range h.metricSubs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var failed []string

	for _, sub := range subs {
		if err := deliver(func() error { return sub.ReceiveMetricUpdate(update) }); err != nil {
			logger.WarnKV(ctx, "Dropping metric subscriber after failed delivery", "subscriber_id", sub.ID(), "error", err)

			failed = append(failed, sub.ID())
		}
	}

	h.drop(ctx, metrics.SetMetrics, failed)
}

// PublishAlarms delivers update to every alarm subscriber. Subscribers whose
// delivery fails are removed from the alarm set.
func (h *Hub) PublishAlarms(ctx context.Context, update alarm.Update) {
	h.mu.RLock()
	subs := make([]AlarmSubscriber, 0, len(h.alarmSubs))
	for _, sub := range h.alarmSubs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var failed []string

	for _, sub := range subs {
		if err := deliver(func() error { return sub.ReceiveAlarmUpdate(update) }); err != nil {
			logger.WarnKV(ctx, "Dropping alarm subscriber after failed delivery", "subscriber_id", sub.ID(), "error", err)

			failed = append(failed, sub.ID())
		}
	}

	h.drop(ctx, metrics.SetAlarms, failed)
}

// MetricSubscriberIDs returns the ids in the metric set, sorted.
func (h *Hub) MetricSubscriberIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return sortedKeys(h.metricSubs)
}

// AlarmSubscriberIDs returns the ids in the alarm set, sorted.
func (h *Hub) AlarmSubscriberIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return sortedKeys(h.alarmSubs)
}

func (h *Hub) drop(ctx context.Context, set string, ids []string) {
	if len(ids) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range ids {
		switch set {
		case metrics.SetMetrics:
			delete(h.metricSubs, id)
		case metrics.SetAlarms:
			delete(h.alarmSubs, id)
		}

		metrics.SubscriberDropsTotal.WithLabelValues(set).Inc()
	}

	total := len(h.metricSubs)
	if set == metrics.SetAlarms {
		total = len(h.alarmSubs)
	}

	metrics.Subscribers.WithLabelValues(set).Set(float64(total))

	logger.InfoKV(ctx, "Subscribers dropped", "set", set, "count", len(ids), "remaining", total)
}

// deliver runs a delivery call and turns a panic into an error.
func deliver(send func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("hub").Inc()

			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	return send()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
