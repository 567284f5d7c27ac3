package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Runner is anything that can run a reconciliation pass.
type Runner interface {
	Run(ctx context.Context, reason string) (PassResult, error)
}

// StartPeriodicJob runs a pass every interval until ctx is canceled, so channels age into the
// inactive category even when the guild is silent. An interval <= 0 disables the job. The first
// pass comes from the gateway Ready event, not from here.
func StartPeriodicJob(ctx context.Context, r Runner, interval time.Duration) {
	if interval <= 0 {
		slog.Info("periodic reconcile disabled", slog.String("component", "reconcile_job"))
		return
	}
	slog.Info("periodic reconcile starting", slog.Duration("interval", interval), slog.String("component", "reconcile_job"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("periodic reconcile stopped", slog.String("component", "reconcile_job"))
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, "interval"); err != nil {
				slog.Warn("periodic reconcile failed", slog.Any("err", err), slog.String("component", "reconcile_job"))
			}
		}
	}
}
