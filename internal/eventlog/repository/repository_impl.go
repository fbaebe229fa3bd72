package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shoppulse/shoppulse/internal/entity"
	"github.com/shoppulse/shoppulse/internal/eventlog/domain"
	obsmetrics "github.com/shoppulse/shoppulse/internal/observability/metrics"
	"github.com/shoppulse/shoppulse/internal/partition"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Policy      *partition.Policy
	Provisioner *partition.Provisioner
	Registry    *entity.Registry
	GenID       *snowflake.Node
}

type repositoryImpl struct {
	db          *gorm.DB
	log         *zap.Logger
	policy      *partition.Policy
	provisioner *partition.Provisioner
	registry    *entity.Registry
	genID       *snowflake.Node
}

func New(p Params) domain.Repository {
	return &repositoryImpl{
		db:          p.DB,
		log:         p.Log.Named("eventlog"),
		policy:      p.Policy,
		provisioner: p.Provisioner,
		registry:    p.Registry,
		genID:       p.GenID,
	}
}

func (r *repositoryImpl) Append(ctx context.Context, ev *domain.Event) (snowflake.ID, error) {
	desc, err := r.registry.Lookup(ev.EntityType)
	if err != nil {
		return 0, err
	}
	if _, err := domain.ParseKind(string(ev.Kind)); err != nil {
		return 0, err
	}

	ev.EventTime = r.policy.NormalizeTime(ev.EventTime)
	ev.PartitionKey = r.policy.DeriveKey(ev.EventTime, desc.EventGranularity)

	if err := r.provisioner.EnsureForTime(ctx, desc.EventTable, desc.EventGranularity, ev.EventTime); err != nil {
		return 0, fmt.Errorf("ensure event partition: %w", err)
	}

	if ev.ID == 0 {
		ev.ID = r.genID.Generate()
	}
	ev.CreatedAt = time.Now().UTC()

	if err := r.db.WithContext(ctx).Table(desc.EventTable).Create(ev).Error; err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	obsmetrics.Rollup().IncEventAppended(string(ev.EntityType), string(ev.Kind))
	return ev.ID, nil
}

func (r *repositoryImpl) QueryKindsOnDate(ctx context.Context, t entity.Type, date time.Time, kinds []domain.Kind) ([]domain.Event, error) {
	desc, err := r.registry.Lookup(t)
	if err != nil {
		return nil, err
	}

	dayStart := r.policy.Truncate(date, partition.GranularityDaily)
	dayEnd := dayStart.AddDate(0, 0, 1)

	kindValues := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		kindValues = append(kindValues, string(kind))
	}

	var events []domain.Event
	query := fmt.Sprintf(
		`SELECT id, entity_type, kind, event_time, metadata, partition_key, created_at
		 FROM %s
		 WHERE kind IN ? AND event_time >= ? AND event_time < ?
		 ORDER BY event_time ASC, id ASC`,
		desc.EventTable,
	)
	if err := r.db.WithContext(ctx).Raw(query, kindValues, dayStart, dayEnd).Scan(&events).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

func (r *repositoryImpl) DateBounds(ctx context.Context, t entity.Type) (domain.DateBoundsResult, error) {
	desc, err := r.registry.Lookup(t)
	if err != nil {
		return domain.DateBoundsResult{}, err
	}

	min, ok, err := r.boundary(ctx, desc.EventTable, "ASC")
	if err != nil || !ok {
		return domain.DateBoundsResult{}, err
	}
	max, _, err := r.boundary(ctx, desc.EventTable, "DESC")
	if err != nil {
		return domain.DateBoundsResult{}, err
	}
	return domain.DateBoundsResult{Min: min, Max: max, OK: true}, nil
}

func (r *repositoryImpl) boundary(ctx context.Context, table, direction string) (time.Time, bool, error) {
	var rows []struct {
		EventTime time.Time `gorm:"column:event_time"`
	}
	query := fmt.Sprintf(
		`SELECT event_time FROM %s ORDER BY event_time %s LIMIT 1`,
		table, direction,
	)
	if err := r.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return time.Time{}, false, fmt.Errorf("event date bounds: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].EventTime.UTC(), true, nil
}
