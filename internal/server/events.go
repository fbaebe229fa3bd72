package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shoppulse/shoppulse/internal/entity"
	eventdomain "github.com/shoppulse/shoppulse/internal/eventlog/domain"
	"gorm.io/datatypes"
)

type appendEventRequest struct {
	EntityType string                 `json:"entity_type" binding:"required"`
	Kind       string                 `json:"kind" binding:"required"`
	EventTime  *time.Time             `json:"event_time"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type appendEventResponse struct {
	ID           int64     `json:"id"`
	EntityType   string    `json:"entity_type"`
	Kind         string    `json:"kind"`
	EventTime    time.Time `json:"event_time"`
	PartitionKey string    `json:"partition_key"`
}

func (s *Server) appendEvent(c *gin.Context) {
	var req appendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	entityType, err := entity.ParseType(req.EntityType)
	if err != nil {
		abortWithError(c, err)
		return
	}
	kind, err := eventdomain.ParseKind(req.Kind)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ev := &eventdomain.Event{
		EntityType: entityType,
		Kind:       kind,
		Metadata:   datatypes.JSONMap(req.Metadata),
	}
	if req.EventTime != nil {
		ev.EventTime = *req.EventTime
	}
	if ev.Metadata == nil {
		ev.Metadata = datatypes.JSONMap{}
	}

	id, err := s.events.Append(c.Request.Context(), ev)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, appendEventResponse{
		ID:           id.Int64(),
		EntityType:   string(ev.EntityType),
		Kind:         string(ev.Kind),
		EventTime:    ev.EventTime,
		PartitionKey: ev.PartitionKey,
	})
}
