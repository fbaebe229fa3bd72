package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shoppulse/shoppulse/internal/config"
	"github.com/shoppulse/shoppulse/internal/entity"
	eventrepo "github.com/shoppulse/shoppulse/internal/eventlog/repository"
	"github.com/shoppulse/shoppulse/internal/partition"
	"github.com/shoppulse/shoppulse/internal/rollup"
	snapshotservice "github.com/shoppulse/shoppulse/internal/snapshot/service"
	"github.com/shoppulse/shoppulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
		DB: conn, Log: log, Policy: policy,
		Provisioner: provisioner, Registry: registry, GenID: node,
	})
	snapshots := snapshotservice.New(snapshotservice.Params{
		DB: conn, Log: log, Policy: policy,
		Provisioner: provisioner, Registry: registry, Events: events,
	})
	orchestrator := rollup.NewOrchestrator(rollup.Params{
		Log: log, Policy: policy, Registry: registry,
		Events: events, Snapshots: snapshots,
		Options: rollup.Options{Workers: 1},
	})

	srv := New(Params{
		Config:       config.Config{HTTPAddr: ":0"},
		Log:          log,
		Events:       events,
		Snapshots:    snapshots,
		Orchestrator: orchestrator,
	})
	return srv.Engine()
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAppendEventEndpoint(t *testing.T) {
	engine := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/events", gin.H{
		"entity_type": "user",
		"kind":        "created",
		"event_time":  "2026-03-14T09:30:00Z",
		"metadata":    gin.H{"entity_id": "u-1", "name": "Ada"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-03-14T09:00:00", resp["partition_key"])
	assert.NotZero(t, resp["id"])
}

func TestAppendEventRejectsUnknownType(t *testing.T) {
	engine := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/events", gin.H{
		"entity_type": "invoice",
		"kind":        "created",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileAndReadSnapshot(t *testing.T) {
	engine := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/events", gin.H{
		"entity_type": "user",
		"kind":        "created",
		"event_time":  "2026-03-14T09:30:00Z",
		"metadata":    gin.H{"entity_id": "u-1", "name": "Ada"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, engine, http.MethodPost, "/v1/snapshots/reconcile", gin.H{
		"entity_type": "user",
		"date":        "2026-03-14",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reconciled map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reconciled))
	assert.EqualValues(t, 1, reconciled["rows"])

	rec = doJSON(t, engine, http.MethodGet, "/v1/snapshots/user?date=2026-03-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Count int `json:"count"`
		Rows  []struct {
			EntityID string `json:"entity_id"`
			Status   bool   `json:"status"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, 1, snap.Count)
	assert.Equal(t, "u-1", snap.Rows[0].EntityID)
	assert.True(t, snap.Rows[0].Status)
}

func TestRollupEndpoint(t *testing.T) {
	engine := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/events", gin.H{
		"entity_type": "user",
		"kind":        "created",
		"event_time":  "2026-03-14T09:30:00Z",
		"metadata":    gin.H{"entity_id": "u-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, engine, http.MethodPost, "/v1/snapshots/rollup", gin.H{
		"entity_types": []string{"user"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["succeeded"])
	assert.EqualValues(t, 0, resp["failed"])
}

func TestHealthz(t *testing.T) {
	engine := newTestServer(t)

	rec := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
