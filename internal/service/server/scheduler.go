package server

import (
	"context"
	"time"

	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/logger"
)

// Ticker is the part of the engine driven by the scheduler.
type Ticker interface {
	Tick(ctx context.Context) (metric.Snapshot, bool)
}

// runScheduler ticks eng every interval until ctx is canceled. The engine
// ignores ticks while the simulation is stopped.
func runScheduler(ctx context.Context, eng Ticker, interval time.Duration) error {
	ctx = logger.WithName(ctx, "scheduler")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.DebugKV(ctx, "Scheduler started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			eng.Tick(ctx)
		}
	}
}
