package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shoppulse/shoppulse/internal/entity"
)

// DateBoundsResult carries the observed event_time extremes of one entity
// type's log. OK is false when the log is empty.
type DateBoundsResult struct {
	Min time.Time
	Max time.Time
	OK  bool
}

// Repository is the append-only event log. There is deliberately no
// update or delete: re-runnable reconciliation depends on the log being
// immutable.
type Repository interface {
	// Append ensures the event's partition exists, derives its partition
	// key, and inserts it. A zero EventTime is substituted with now.
	Append(ctx context.Context, ev *Event) (snowflake.ID, error)

	// QueryKindsOnDate returns all events of the given kinds whose
	// event_time falls within the UTC calendar day of date, ordered by
	// event_time then id.
	QueryKindsOnDate(ctx context.Context, t entity.Type, date time.Time, kinds []Kind) ([]Event, error)

	// DateBounds returns MIN/MAX event_time for range auto-discovery.
	DateBounds(ctx context.Context, t entity.Type) (DateBoundsResult, error)
}
