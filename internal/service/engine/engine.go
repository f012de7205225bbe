package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/oshokin/threshold-alarm/internal/alarm"
	domain "github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/hub"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/simulator"
	"github.com/oshokin/threshold-alarm/internal/threshold"
)

// Config is the static configuration of the engine. It is read once by New.
type Config struct {
	// Metrics describes every simulated metric.
	Metrics map[string]metric.Spec
	// Thresholds holds the default pair per metric.
	Thresholds map[string]domain.ThresholdPair
	// HistoryLimit caps the alarm history.
	HistoryLimit int
	// Autostart makes the engine accept ticks right away.
	Autostart bool
}

// Engine serializes every command and tick against the core components.
type Engine struct {
	// thresholds is the threshold store.
	thresholds *threshold.Store
	// simulator produces metric values.
	simulator *simulator.Simulator
	// alarms is the alarm state machine.
	alarms *alarm.Manager
	// hub fans updates out to subscribers.
	hub *hub.Hub
	// pending holds alarm updates produced while the lock is held;
	// they are published after the metric update that caused them.
	pending []domain.Update
	// running reports whether ticks are applied.
	running bool
	// mu serializes every mutating operation.
	mu sync.Mutex
}

// Option configures the engine components.
type Option func(*options)

type options struct {
	simulator []simulator.Option
	alarm     []alarm.Option
}

// WithRand injects the random source of the simulator.
func WithRand(r simulator.Rand) Option {
	return func(o *options) {
		o.simulator = append(o.simulator, simulator.WithRand(r))
	}
}

// WithSeed seeds the simulator. Zero keeps time seeding.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.simulator = append(o.simulator, simulator.WithSeed(seed))
	}
}

// WithClock replaces the time source of the alarm manager.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.alarm = append(o.alarm, alarm.WithClock(now))
	}
}

// New builds the core components from cfg and wires them together.
func New(cfg Config, opts ...Option) *Engine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		hub:        hub.New(),
		thresholds: threshold.NewStore(cfg.Thresholds),
		running:    cfg.Autostart,
	}

	units := make(map[string]string, len(cfg.Metrics))
	for name, spec := range cfg.Metrics {
		units[name] = spec.Unit
	}

	alarmOpts := append([]alarm.Option{alarm.WithPublisher(e), alarm.WithMetrics(units)}, o.alarm...)
	e.alarms = alarm.NewManager(cfg.HistoryLimit, alarmOpts...)
	e.simulator = simulator.New(cfg.Metrics, e.thresholds, e.alarms, o.simulator...)
	e.hub.Bind(e.simulator, e.alarms)

	return e
}

// PublishAlarms queues an alarm update. The alarm manager calls it while the
// engine lock is held; queued updates are flushed by the command that caused them.
func (e *Engine) PublishAlarms(_ context.Context, update domain.Update) {
	e.pending = append(e.pending, update)
}

// Tick advances the simulation once and publishes the results.
// It returns false without touching any state when the simulation is stopped.
func (e *Engine) Tick(ctx context.Context) (metric.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, false
	}

	update := e.simulator.Tick(ctx)

	e.hub.PublishMetrics(ctx, update)
	e.flushLocked(ctx)

	return update, true
}

// StartSimulation resumes ticking. It reports whether the state changed.
func (e *Engine) StartSimulation(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return false
	}

	e.running = true

	logger.Info(ctx, "Simulation started")

	return true
}

// StopSimulation pauses ticking. Once it returns no further tick is applied
// until StartSimulation. It reports whether the state changed.
func (e *Engine) StopSimulation(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return false
	}

	e.running = false

	logger.Info(ctx, "Simulation stopped")

	return true
}

// Running reports whether ticks are applied.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.running
}

// SetThreshold replaces the pair of one metric. Invalid pairs are rejected
// and leave the previous pair intact.
func (e *Engine) SetThreshold(ctx context.Context, name string, warning, critical float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.thresholds.Set(ctx, name, domain.ThresholdPair{Warning: warning, Critical: critical}); err != nil {
		return fmt.Errorf("set threshold for %q: %w", name, err)
	}

	return nil
}

// ResetThresholds restores the configured pairs.
func (e *Engine) ResetThresholds(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.thresholds.ResetDefaults(ctx)
}

// ClearAlarms forces every alarm back to normal and notifies subscribers.
func (e *Engine) ClearAlarms(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.alarms.ClearAll(ctx)
	e.flushLocked(ctx)

	return true
}

// InjectSpike sets a metric to fraction × max and runs it through evaluation
// and fan-out like a tick would. It works while the simulation is stopped.
func (e *Engine) InjectSpike(ctx context.Context, name string, fraction float64) (metric.Reading, error) {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return metric.Reading{}, ErrInvalidFraction
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	reading, ok := e.simulator.Spike(ctx, name, fraction)
	if !ok {
		return metric.Reading{}, fmt.Errorf("spike %q: %w", name, ErrUnknownMetric)
	}

	logger.InfoKV(ctx, "Spike injected", "metric", name, "fraction", fraction, "value", reading.Value)

	e.hub.PublishMetrics(ctx, metric.Snapshot{name: reading})
	e.flushLocked(ctx)

	return reading, nil
}

// AddMetric starts simulating a new metric at 0 saturated into its bounds
// and announces the reading to metric subscribers.
// Its alarm record appears on the first evaluation; thresholds are set
// separately with SetThreshold.
func (e *Engine) AddMetric(ctx context.Context, name string, spec metric.Spec) (metric.Reading, error) {
	if name == "" {
		return metric.Reading{}, threshold.ErrEmptyMetric
	}

	if err := spec.Validate(); err != nil {
		return metric.Reading{}, fmt.Errorf("add %q: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.simulator.Track(name, spec) {
		return metric.Reading{}, fmt.Errorf("add %q: %w", name, ErrMetricExists)
	}

	reading, _ := e.simulator.Value(name)

	logger.InfoKV(ctx, "Metric added", "metric", name, "min", spec.Min, "max", spec.Max, "unit", spec.Unit)

	e.hub.PublishMetrics(ctx, metric.Snapshot{name: reading})

	return reading, nil
}

// Thresholds returns every threshold pair.
func (e *Engine) Thresholds() map[string]domain.ThresholdPair {
	return e.thresholds.All()
}

// Threshold returns the pair of one metric.
func (e *Engine) Threshold(name string) (domain.ThresholdPair, bool) {
	return e.thresholds.Get(name)
}

// Metrics returns the current reading of every metric.
func (e *Engine) Metrics() metric.Snapshot {
	return e.simulator.Values()
}

// Alarms returns alarm statuses, history and the highest severity.
func (e *Engine) Alarms() domain.Update {
	return e.alarms.Snapshot()
}

// Subscribe registers sub for both metric and alarm updates.
// If the alarm registration fails the metric registration is rolled back.
func (e *Engine) Subscribe(ctx context.Context, sub hub.Subscriber) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.hub.SubscribeMetrics(ctx, sub); err != nil {
		return fmt.Errorf("subscribe metrics: %w", err)
	}

	if err := e.hub.SubscribeAlarms(ctx, sub); err != nil {
		e.hub.UnsubscribeMetrics(ctx, sub.ID())

		return fmt.Errorf("subscribe alarms: %w", err)
	}

	return nil
}

// SubscribeMetrics registers sub for metric updates only.
func (e *Engine) SubscribeMetrics(ctx context.Context, sub hub.MetricSubscriber) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.hub.SubscribeMetrics(ctx, sub); err != nil {
		return fmt.Errorf("subscribe metrics: %w", err)
	}

	return nil
}

// SubscribeAlarms registers sub for alarm updates only.
func (e *Engine) SubscribeAlarms(ctx context.Context, sub hub.AlarmSubscriber) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.hub.SubscribeAlarms(ctx, sub); err != nil {
		return fmt.Errorf("subscribe alarms: %w", err)
	}

	return nil
}

// Unsubscribe removes id from both subscriber sets. It is idempotent.
func (e *Engine) Unsubscribe(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hub.UnsubscribeMetrics(ctx, id)
	e.hub.UnsubscribeAlarms(ctx, id)
}

// Hub exposes the fan-out hub for inspection.
func (e *Engine) Hub() *hub.Hub {
	return e.hub
}

func (e *Engine) flushLocked(ctx context.Context) {
	for _, update := range e.pending {
		e.hub.PublishAlarms(ctx, update)
	}

	e.pending = nil
}
