package rollup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shoppulse/shoppulse/internal/entity"
	eventdomain "github.com/shoppulse/shoppulse/internal/eventlog/domain"
	obsmetrics "github.com/shoppulse/shoppulse/internal/observability/metrics"
	"github.com/shoppulse/shoppulse/internal/partition"
	snapshotdomain "github.com/shoppulse/shoppulse/internal/snapshot/domain"
	"github.com/shoppulse/shoppulse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const maxRetryBackoff = 5 * time.Second

type Params struct {
	fx.In

	Log       *zap.Logger
	Policy    *partition.Policy
	Registry  *entity.Registry
	Events    eventdomain.Repository
	Snapshots snapshotdomain.Service
	Options   Options
}

// Orchestrator drives snapshot reconciliation over date ranges. Entity
// types fan out concurrently; within one type, dates run strictly in
// order because each day's snapshot folds in the previous day's.
type Orchestrator struct {
	log       *zap.Logger
	policy    *partition.Policy
	registry  *entity.Registry
	events    eventdomain.Repository
	snapshots snapshotdomain.Service
	opts      Options
}

func NewOrchestrator(p Params) *Orchestrator {
	return &Orchestrator{
		log:       p.Log.Named("rollup"),
		policy:    p.Policy,
		registry:  p.Registry,
		events:    p.Events,
		snapshots: p.Snapshots,
		opts:      p.Options.withDefaults(),
	}
}

// RunRange reconciles every (entity type, date) unit in [from, to]. An
// empty types slice means all configured types. Zero from/to means the
// range is discovered per type from the event log's MIN/MAX event_time.
func (o *Orchestrator) RunRange(ctx context.Context, types []entity.Type, from, to time.Time) (*Report, error) {
	if len(types) == 0 {
		types = o.registry.Types()
	}

	report := &Report{}
	sem := semaphore.NewWeighted(int64(o.opts.Workers))

	var mu sync.Mutex
	var errs []error

	g := new(errgroup.Group)
	for _, t := range types {
		t := t
		g.Go(func() error {
			if err := o.walkType(ctx, sem, report, t, from, to); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, errors.Join(errs...)
}

func (o *Orchestrator) walkType(
	ctx context.Context,
	sem *semaphore.Weighted,
	report *Report,
	t entity.Type,
	from, to time.Time,
) error {
	if _, err := o.registry.Lookup(t); err != nil {
		return err
	}

	from, to, ok, err := o.resolveRange(ctx, t, from, to)
	if err != nil {
		return err
	}
	if !ok {
		o.log.Info("no events to roll up", zap.String("entity_type", string(t)))
		obsmetrics.Rollup().IncUnit(string(t), obsmetrics.UnitStatusSkipped)
		return nil
	}

	start := o.policy.Truncate(from, partition.GranularityDaily)
	end := o.policy.Truncate(to, partition.GranularityDaily)
	if end.Before(start) {
		start, end = end, start
	}

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result := o.runUnit(ctx, sem, t, date)
		report.add(result)
		obsmetrics.Rollup().IncUnit(string(t), string(result.Status))
		obsmetrics.Rollup().ObserveUnitDuration(string(t), result.Duration)

		if result.Status == UnitFailed {
			// Later days fold the failed day's snapshot, so the walk
			// stops here and the rest of the range is marked skipped.
			for skip := date.AddDate(0, 0, 1); !skip.After(end); skip = skip.AddDate(0, 0, 1) {
				report.add(UnitResult{EntityType: t, Date: skip, Status: UnitSkipped})
				obsmetrics.Rollup().IncUnit(string(t), obsmetrics.UnitStatusSkipped)
			}
			return fmt.Errorf("rollup %s %s: %s", t, date.Format("2006-01-02"), result.Error)
		}
	}
	return nil
}

func (o *Orchestrator) runUnit(ctx context.Context, sem *semaphore.Weighted, t entity.Type, date time.Time) UnitResult {
	result := UnitResult{EntityType: t, Date: date}
	started := time.Now()
	defer func() { result.Duration = time.Since(started) }()

	backoff := o.opts.RetryBackoff
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := sem.Acquire(ctx, 1); err != nil {
			result.Status = UnitFailed
			result.Error = err.Error()
			return result
		}
		rows, err := o.snapshots.Reconcile(ctx, t, date)
		sem.Release(1)

		if err == nil {
			result.Status = UnitSuccess
			result.Rows = rows
			return result
		}

		result.Error = err.Error()
		if !db.IsTransientErr(err) || attempt == o.opts.MaxAttempts {
			break
		}

		obsmetrics.Rollup().IncUnitRetry(string(t))
		o.log.Warn("transient rollup failure, retrying",
			zap.String("entity_type", string(t)),
			zap.String("date", date.Format("2006-01-02")),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			result.Status = UnitFailed
			result.Error = ctx.Err().Error()
			return result
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}

	result.Status = UnitFailed
	return result
}

// resolveRange fills a zero from/to from the entity type's event log
// bounds. ok is false when the log is empty and nothing was requested.
func (o *Orchestrator) resolveRange(ctx context.Context, t entity.Type, from, to time.Time) (time.Time, time.Time, bool, error) {
	if !from.IsZero() && !to.IsZero() {
		return from, to, true, nil
	}

	bounds, err := o.events.DateBounds(ctx, t)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("discover range for %s: %w", t, err)
	}
	if !bounds.OK {
		return time.Time{}, time.Time{}, false, nil
	}
	if from.IsZero() {
		from = bounds.Min
	}
	if to.IsZero() {
		to = bounds.Max
	}
	return from, to, true, nil
}
