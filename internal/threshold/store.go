package threshold

import (
	"context"
	"sync"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/metrics"
)

// Store holds the threshold pair of every known metric.
// All mutation goes through Set and ResetDefaults.
type Store struct {
	// defaults are the pairs loaded from configuration.
	defaults map[string]alarm.ThresholdPair
	// pairs are the current pairs, keyed by metric name.
	pairs map[string]alarm.ThresholdPair
	// mu guards pairs.
	mu sync.RWMutex
}

// NewStore creates a store seeded with the default pairs.
// Defaults that violate critical > warning are skipped.
func NewStore(defaults map[string]alarm.ThresholdPair) *Store {
	s := &Store{
		defaults: make(map[string]alarm.ThresholdPair, len(defaults)),
		pairs:    make(map[string]alarm.ThresholdPair, len(defaults)),
	}

	for name, pair := range defaults {
		if pair.Validate() != nil {
			continue
		}

		s.defaults[name] = pair
		s.pairs[name] = pair
	}

	return s
}

// Evaluate returns the status of value for metric. Unknown metrics are normal.
func (s *Store) Evaluate(metric string, value float64) alarm.Status {
	s.mu.RLock()
	pair, ok := s.pairs[metric]
	s.mu.RUnlock()

	if !ok {
		return alarm.StatusNormal
	}

	return pair.Evaluate(value)
}

// Set replaces both boundaries of metric at once. An invalid pair is rejected
// and leaves the previous values intact. Unknown metrics are created.
func (s *Store) Set(ctx context.Context, metric string, pair alarm.ThresholdPair) error {
	if metric == "" {
		metrics.ThresholdUpdatesTotal.WithLabelValues("rejected").Inc()

		return ErrEmptyMetric
	}

	if err := pair.Validate(); err != nil {
		metrics.ThresholdUpdatesTotal.WithLabelValues("rejected").Inc()
		logger.WarnKV(ctx, "Threshold update rejected",
			"metric", metric, "warning", pair.Warning, "critical", pair.Critical, "error", err)

		return err
	}

	s.mu.Lock()
	s.pairs[metric] = pair
	s.mu.Unlock()

	metrics.ThresholdUpdatesTotal.WithLabelValues("accepted").Inc()
	logger.InfoKV(ctx, "Threshold updated", "metric", metric, "warning", pair.Warning, "critical", pair.Critical)

	return nil
}

// Get returns the pair of one metric.
func (s *Store) Get(metric string) (alarm.ThresholdPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pair, ok := s.pairs[metric]

	return pair, ok
}

// All returns a copy of every pair.
func (s *Store) All() map[string]alarm.ThresholdPair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]alarm.ThresholdPair, len(s.pairs))
	for name, pair := range s.pairs {
		result[name] = pair
	}

	return result
}

// ResetDefaults restores the configured pair of every default metric.
// Metrics added at runtime keep their current pairs.
func (s *Store) ResetDefaults(ctx context.Context) {
	s.mu.Lock()
	for name, pair := range s.defaults {
		s.pairs[name] = pair
	}
	s.mu.Unlock()

	logger.Info(ctx, "Thresholds reset to defaults")
}
