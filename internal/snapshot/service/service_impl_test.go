package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shoppulse/shoppulse/internal/config"
	"github.com/shoppulse/shoppulse/internal/entity"
	eventdomain "github.com/shoppulse/shoppulse/internal/eventlog/domain"
	eventrepo "github.com/shoppulse/shoppulse/internal/eventlog/repository"
	"github.com/shoppulse/shoppulse/internal/partition"
	"github.com/shoppulse/shoppulse/internal/snapshot/domain"
	"github.com/shoppulse/shoppulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	events  eventdomain.Repository
	service domain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE user_events (
			id INTEGER PRIMARY KEY,
			entity_type TEXT NOT NULL,
			kind TEXT NOT NULL,
			event_time DATETIME NOT NULL,
			metadata TEXT NOT NULL,
			partition_key TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE user_states (
			entity_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			status BOOLEAN NOT NULL,
			created_time DATETIME,
			deactivated_time DATETIME,
			partition_key TEXT NOT NULL,
			event_time DATETIME NOT NULL,
			PRIMARY KEY (entity_id, partition_key)
		)`,
	} {
		require.NoError(t, conn.Exec(ddl).Error)
	}

	log := zap.NewNop()
	policy := partition.NewPolicy(log)
	provisioner := partition.NewProvisioner(partition.Params{DB: conn, Log: log, Policy: policy})

	registry, err := entity.NewRegistryFromConfig(config.DefaultPartitioningConfig())
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	events := eventrepo.New(eventrepo.Params{
		DB:          conn,
		Log:         log,
		Policy:      policy,
		Provisioner: provisioner,
		Registry:    registry,
		GenID:       node,
	})
	svc := New(Params{
		DB:          conn,
		Log:         log,
		Policy:      policy,
		Provisioner: provisioner,
		Registry:    registry,
		Events:      events,
	})

	return &testEnv{db: conn, events: events, service: svc}
}

func (e *testEnv) append(t *testing.T, kind eventdomain.Kind, at time.Time, meta datatypes.JSONMap) {
	t.Helper()
	_, err := e.events.Append(context.Background(), &eventdomain.Event{
		EntityType: entity.TypeUser,
		Kind:       kind,
		EventTime:  at,
		Metadata:   meta,
	})
	require.NoError(t, err)
}

func (e *testEnv) snapshot(t *testing.T, date time.Time) map[string]domain.StateRow {
	t.Helper()
	rows, err := e.service.Snapshot(context.Background(), entity.TypeUser, date)
	require.NoError(t, err)
	byID := make(map[string]domain.StateRow, len(rows))
	for _, row := range rows {
		byID[row.EntityID] = row
	}
	return byID
}

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func TestReconcileCreations(t *testing.T) {
	env := newTestEnv(t)

	env.append(t, eventdomain.KindCreated, day.Add(9*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1", "name": "Ada", "email": "ada@example.com",
	})
	env.append(t, eventdomain.KindCreated, day.Add(10*time.Hour), datatypes.JSONMap{
		"entity_id": "u-2", "name": "Linus",
	})

	written, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	rows := env.snapshot(t, day)
	require.Len(t, rows, 2)

	u1 := rows["u-1"]
	assert.True(t, u1.Status)
	assert.Equal(t, "Ada", u1.Name)
	assert.Equal(t, "ada@example.com", u1.Email)
	require.NotNil(t, u1.CreatedTime)
	assert.True(t, u1.CreatedTime.Equal(day.Add(9*time.Hour)))
	assert.Nil(t, u1.DeactivatedTime)
	assert.Equal(t, "2026-03-14", u1.PartitionKey)
}

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	env.append(t, eventdomain.KindCreated, day.Add(time.Hour), datatypes.JSONMap{
		"entity_id": "u-1", "name": "Ada",
	})

	first, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)
	before := env.snapshot(t, day)

	second, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, before, env.snapshot(t, day))
}

func TestSameDayCreateAndDeactivate(t *testing.T) {
	env := newTestEnv(t)

	env.append(t, eventdomain.KindCreated, day.Add(10*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1", "name": "Ada",
	})
	env.append(t, eventdomain.KindDeactivated, day.Add(11*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1",
	})

	_, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)

	row := env.snapshot(t, day)["u-1"]
	assert.False(t, row.Status)
	require.NotNil(t, row.CreatedTime)
	require.NotNil(t, row.DeactivatedTime)
	assert.True(t, row.CreatedTime.Equal(day.Add(10*time.Hour)))
	assert.True(t, row.DeactivatedTime.Equal(day.Add(11*time.Hour)))
}

func TestCarryForwardToNextDay(t *testing.T) {
	env := newTestEnv(t)
	next := day.AddDate(0, 0, 1)

	env.append(t, eventdomain.KindCreated, day.Add(8*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1", "name": "Ada", "email": "ada@example.com",
	})
	_, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)

	// No events on the next day: the row carries forward unchanged.
	written, err := env.service.Reconcile(context.Background(), entity.TypeUser, next)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	row := env.snapshot(t, next)["u-1"]
	assert.True(t, row.Status)
	assert.Equal(t, "Ada", row.Name)
	assert.Equal(t, "2026-03-15", row.PartitionKey)
	require.NotNil(t, row.CreatedTime)
	assert.True(t, row.CreatedTime.Equal(day.Add(8*time.Hour)))
}

func TestDeactivationIsMonotonic(t *testing.T) {
	env := newTestEnv(t)

	env.append(t, eventdomain.KindCreated, day.Add(time.Hour), datatypes.JSONMap{
		"entity_id": "u-1",
	})
	env.append(t, eventdomain.KindDeactivated, day.Add(11*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1",
	})
	_, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)

	// An earlier deactivation arriving late never rolls the time back.
	env.append(t, eventdomain.KindDeactivated, day.Add(9*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1",
	})
	_, err = env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)

	row := env.snapshot(t, day)["u-1"]
	assert.False(t, row.Status)
	require.NotNil(t, row.DeactivatedTime)
	assert.True(t, row.DeactivatedTime.Equal(day.Add(11*time.Hour)))
}

func TestReactivationClearsDeactivation(t *testing.T) {
	env := newTestEnv(t)
	next := day.AddDate(0, 0, 1)

	env.append(t, eventdomain.KindCreated, day.Add(time.Hour), datatypes.JSONMap{
		"entity_id": "u-1", "name": "Ada",
	})
	env.append(t, eventdomain.KindDeactivated, day.Add(2*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1",
	})
	_, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)
	require.False(t, env.snapshot(t, day)["u-1"].Status)

	env.append(t, eventdomain.KindReactivated, next.Add(3*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1",
	})
	_, err = env.service.Reconcile(context.Background(), entity.TypeUser, next)
	require.NoError(t, err)

	row := env.snapshot(t, next)["u-1"]
	assert.True(t, row.Status)
	assert.Nil(t, row.DeactivatedTime)
	require.NotNil(t, row.CreatedTime)
	assert.True(t, row.CreatedTime.Equal(day.Add(time.Hour)))
}

func TestDeactivationWithoutCreation(t *testing.T) {
	env := newTestEnv(t)

	env.append(t, eventdomain.KindDeactivated, day.Add(5*time.Hour), datatypes.JSONMap{
		"entity_id": "u-ghost",
	})

	written, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	row := env.snapshot(t, day)["u-ghost"]
	assert.False(t, row.Status)
	assert.Nil(t, row.CreatedTime)
	require.NotNil(t, row.DeactivatedTime)
}

func TestEventsWithoutEntityIDAreSkipped(t *testing.T) {
	env := newTestEnv(t)

	env.append(t, eventdomain.KindCreated, day.Add(time.Hour), datatypes.JSONMap{
		"name": "no id here",
	})
	env.append(t, eventdomain.KindCreated, day.Add(2*time.Hour), datatypes.JSONMap{
		"entity_id": "u-1",
	})

	written, err := env.service.Reconcile(context.Background(), entity.TypeUser, day)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	rows := env.snapshot(t, day)
	require.Len(t, rows, 1)
	assert.Contains(t, rows, "u-1")
}

func TestReconcileUnknownEntityType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Reconcile(context.Background(), entity.Type("invoice"), day)
	assert.ErrorIs(t, err, entity.ErrUnknownType)
}
