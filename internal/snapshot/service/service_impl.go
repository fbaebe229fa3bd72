package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shoppulse/shoppulse/internal/entity"
	eventdomain "github.com/shoppulse/shoppulse/internal/eventlog/domain"
	obsmetrics "github.com/shoppulse/shoppulse/internal/observability/metrics"
	"github.com/shoppulse/shoppulse/internal/partition"
	"github.com/shoppulse/shoppulse/internal/snapshot/domain"
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
	Events      eventdomain.Repository
}

type serviceImpl struct {
	db          *gorm.DB
	log         *zap.Logger
	policy      *partition.Policy
	provisioner *partition.Provisioner
	registry    *entity.Registry
	events      eventdomain.Repository
}

func New(p Params) domain.Service {
	return &serviceImpl{
		db:          p.DB,
		log:         p.Log.Named("snapshot"),
		policy:      p.Policy,
		provisioner: p.Provisioner,
		registry:    p.Registry,
		events:      p.Events,
	}
}

// accum folds the four reconciliation sources for one entity id. All
// timestamp merges take the maximum; a reactivation strictly later than
// every deactivation clears the deactivated time outright.
type accum struct {
	entityID    string
	name        string
	email       string
	created     *time.Time
	deactivated *time.Time
	reactivated *time.Time
	eventTime   time.Time
}

func (a *accum) mergeCreated(t *time.Time) {
	a.created = maxTime(a.created, t)
}

func (a *accum) mergeDeactivated(t *time.Time) {
	a.deactivated = maxTime(a.deactivated, t)
}

func (a *accum) mergeAttrs(name, email string) {
	if name != "" {
		a.name = name
	}
	if email != "" {
		a.email = email
	}
}

func (a *accum) mergeEventTime(t time.Time) {
	if t.After(a.eventTime) {
		a.eventTime = t
	}
}

// resolve applies the reactivation rule and returns the final row along
// with whether the upsert must explicitly null out deactivated_time.
func (a *accum) resolve(partitionKey string) (domain.StateRow, bool) {
	deactivated := a.deactivated
	clearDeactivated := false
	if a.reactivated != nil && (deactivated == nil || a.reactivated.After(*deactivated)) {
		deactivated = nil
		clearDeactivated = true
	}
	return domain.StateRow{
		EntityID:        a.entityID,
		Name:            a.name,
		Email:           a.email,
		Status:          deactivated == nil,
		CreatedTime:     a.created,
		DeactivatedTime: deactivated,
		PartitionKey:    partitionKey,
		EventTime:       a.eventTime,
	}, clearDeactivated
}

func maxTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || b.Before(*a) {
		return a
	}
	return b
}

func (s *serviceImpl) Reconcile(ctx context.Context, entityType entity.Type, date time.Time) (int, error) {
	desc, err := s.registry.Lookup(entityType)
	if err != nil {
		return 0, err
	}

	day := s.policy.Truncate(date, partition.GranularityDaily)
	key := s.policy.DeriveKey(day, desc.StateGranularity)
	priorKey := s.policy.DeriveKey(day.AddDate(0, 0, -1), desc.StateGranularity)

	// The destination partition is created before any write so the upsert
	// batch never races partition DDL mid-transaction.
	if err := s.provisioner.EnsureForTime(ctx, desc.StateTable, desc.StateGranularity, day); err != nil {
		return 0, fmt.Errorf("ensure state partition: %w", err)
	}

	events, err := s.events.QueryKindsOnDate(ctx, entityType, day, []eventdomain.Kind{
		eventdomain.KindCreated,
		eventdomain.KindDeactivated,
		eventdomain.KindReactivated,
	})
	if err != nil {
		return 0, err
	}

	var written int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prior, err := s.readSnapshot(ctx, tx, desc.StateTable, priorKey)
		if err != nil {
			return err
		}
		current, err := s.readSnapshot(ctx, tx, desc.StateTable, key)
		if err != nil {
			return err
		}

		folded := s.fold(entityType, day, prior, current, events)

		ids := make([]string, 0, len(folded))
		for id := range folded {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			row, clearDeactivated := folded[id].resolve(key)
			if err := s.upsert(ctx, tx, desc.StateTable, row, clearDeactivated); err != nil {
				return fmt.Errorf("upsert %s %s: %w", entityType, id, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("snapshot reconciled",
		zap.String("entity_type", string(entityType)),
		zap.String("partition_key", key),
		zap.Int("rows", written),
	)
	return written, nil
}

func (s *serviceImpl) Snapshot(ctx context.Context, entityType entity.Type, date time.Time) ([]domain.StateRow, error) {
	desc, err := s.registry.Lookup(entityType)
	if err != nil {
		return nil, err
	}
	key := s.policy.DeriveKey(s.policy.Truncate(date, partition.GranularityDaily), desc.StateGranularity)
	return s.readSnapshot(ctx, s.db, desc.StateTable, key)
}

// fold groups the sources by entity id. Carried rows are applied oldest
// first and events last, so event-borne attributes win over carried ones.
func (s *serviceImpl) fold(
	entityType entity.Type,
	day time.Time,
	prior, current []domain.StateRow,
	events []eventdomain.Event,
) map[string]*accum {
	folded := make(map[string]*accum)

	get := func(id string) *accum {
		a, ok := folded[id]
		if !ok {
			a = &accum{entityID: id}
			folded[id] = a
		}
		return a
	}

	for _, rows := range [][]domain.StateRow{prior, current} {
		for _, row := range rows {
			a := get(row.EntityID)
			a.mergeCreated(row.CreatedTime)
			a.mergeDeactivated(row.DeactivatedTime)
			a.mergeAttrs(row.Name, row.Email)
			a.mergeEventTime(row.EventTime)
		}
	}

	for _, ev := range events {
		id := ev.EntityID()
		if id == "" {
			obsmetrics.Rollup().IncRowFiltered(string(entityType), "missing_entity_id")
			s.log.Warn("event without entity id skipped",
				zap.String("entity_type", string(entityType)),
				zap.Int64("event_id", ev.ID.Int64()),
				zap.Time("event_time", ev.EventTime),
			)
			continue
		}

		a := get(id)
		t := ev.EventTime.UTC()
		switch ev.Kind {
		case eventdomain.KindCreated:
			a.mergeCreated(&t)
		case eventdomain.KindDeactivated:
			a.mergeDeactivated(&t)
		case eventdomain.KindReactivated:
			a.reactivated = maxTime(a.reactivated, &t)
		}
		a.mergeAttrs(ev.Attr(eventdomain.MetaName), ev.Attr(eventdomain.MetaEmail))
		a.mergeEventTime(t)
	}

	// Events delivered with a zero audit time still need one for the row.
	for _, a := range folded {
		if a.eventTime.IsZero() {
			a.eventTime = day
		}
	}
	return folded
}

func (s *serviceImpl) readSnapshot(ctx context.Context, tx *gorm.DB, table, key string) ([]domain.StateRow, error) {
	var rows []domain.StateRow
	query := fmt.Sprintf(
		`SELECT entity_id, name, email, status, created_time, deactivated_time, partition_key, event_time
		 FROM %s
		 WHERE partition_key = ?
		 ORDER BY entity_id ASC`,
		table,
	)
	if err := tx.WithContext(ctx).Raw(query, key).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("read snapshot %s %s: %w", table, key, err)
	}
	return rows, nil
}

// upsert writes one folded row. created_time keeps the existing value
// when present, deactivated_time only ever moves forward, and status and
// event_time always take the incoming value. An explicit reactivation is
// the single case allowed to null out deactivated_time.
func (s *serviceImpl) upsert(ctx context.Context, tx *gorm.DB, table string, row domain.StateRow, clearDeactivated bool) error {
	deactivatedSet := fmt.Sprintf("deactivated_time = COALESCE(excluded.deactivated_time, %s.deactivated_time)", table)
	if clearDeactivated {
		deactivatedSet = "deactivated_time = NULL"
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (entity_id, name, email, status, created_time, deactivated_time, partition_key, event_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_id, partition_key) DO UPDATE SET
		   name = excluded.name,
		   email = excluded.email,
		   status = excluded.status,
		   created_time = COALESCE(%s.created_time, excluded.created_time),
		   %s,
		   event_time = excluded.event_time`,
		table, table, deactivatedSet,
	)
	return tx.WithContext(ctx).Exec(query,
		row.EntityID, row.Name, row.Email, row.Status,
		row.CreatedTime, row.DeactivatedTime, row.PartitionKey, row.EventTime,
	).Error
}
