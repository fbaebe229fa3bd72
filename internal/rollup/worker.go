package rollup

import (
	"context"
	"time"

	"github.com/shoppulse/shoppulse/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type WorkerParams struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Orchestrator *Orchestrator
	Options      Options
}

// Worker keeps the trailing snapshots fresh: on every tick it reconciles
// yesterday and today for all entity types, so late events on either day
// are folded in without an operator run.
type Worker struct {
	log          *zap.Logger
	clock        clock.Clock
	orchestrator *Orchestrator
	opts         Options
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		log:          p.Log.Named("rollup.worker"),
		clock:        p.Clock,
		orchestrator: p.Orchestrator,
		opts:         p.Options.withDefaults(),
	}
}

// RunForever ticks until ctx is cancelled. A failed tick is logged and
// retried on the next tick rather than crashing the process.
func (w *Worker) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollEvery)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			w.log.Error("rollup tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one yesterday-through-today reconciliation pass.
func (w *Worker) Tick(ctx context.Context) error {
	now := w.clock.Now().UTC()
	report, err := w.orchestrator.RunRange(ctx, nil, now.AddDate(0, 0, -1), now)
	if err != nil {
		return err
	}

	succeeded, failed, skipped := report.Totals()
	w.log.Info("rollup tick complete",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
	return nil
}
