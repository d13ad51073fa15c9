package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoopConfig bounds the watch loop.
type LoopConfig struct {
	Interval      time.Duration // <= 0 means DefaultInterval
	MaxIterations int           // 0 means unbounded
}

// DefaultInterval is the wait between cycles when LoopConfig leaves
// Interval unset.
const DefaultInterval = 5 * time.Minute

// Loop runs cycles until ctx is cancelled or MaxIterations is reached.
// The first cycle runs immediately; cancellation aborts only the wait
// between cycles, never an in-flight cycle. Returns after logging the
// final summary.
func (o *Orchestrator) Loop(ctx context.Context, cfg LoopConfig) error {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	zap.L().Info("orchestrator: watch loop started",
		zap.Duration("interval", cfg.Interval),
		zap.Int("max_iterations", cfg.MaxIterations),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	iterations := 0
	for {
		run := o.Cycle(ctx)
		iterations++

		zap.L().Info("orchestrator: cycle complete",
			zap.String("run_id", run.ID),
			zap.Int("iteration", iterations),
			zap.String("action", string(run.Decision.Action)),
			zap.String("priority", string(run.Decision.Priority)),
			zap.Bool("success", run.Success),
			zap.Duration("took", run.FinishedAt.Sub(run.StartedAt)),
		)

		if cfg.MaxIterations > 0 && iterations >= cfg.MaxIterations {
			zap.L().Info("orchestrator: iteration limit reached",
				zap.Int("iterations", iterations),
			)
			break
		}

		select {
		case <-ctx.Done():
			zap.L().Info("orchestrator: watch loop cancelled")
			zap.L().Info("orchestrator: final summary", zap.String("summary", o.Summary(context.Background())))
			return ctx.Err()
		case <-ticker.C:
		}
	}

	zap.L().Info("orchestrator: final summary", zap.String("summary", o.Summary(ctx)))
	return nil
}
