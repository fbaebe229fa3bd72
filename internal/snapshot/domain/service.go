package domain

import (
	"context"
	"time"

	"github.com/shoppulse/shoppulse/internal/entity"
)

// Service rebuilds one entity type's state snapshot for one partition date.
type Service interface {
	// Reconcile folds that date's events together with the prior-day and
	// current-day snapshots, then upserts the result into the state table.
	// Returns the number of rows written. Safe to re-run any number of times.
	Reconcile(ctx context.Context, entityType entity.Type, date time.Time) (int, error)

	// Snapshot reads the reconciled rows for one partition date, ordered by
	// entity id.
	Snapshot(ctx context.Context, entityType entity.Type, date time.Time) ([]StateRow, error)
}
