package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shoppulse/shoppulse/internal/entity"
	eventdomain "github.com/shoppulse/shoppulse/internal/eventlog/domain"
	"github.com/shoppulse/shoppulse/internal/partition"
)

type errorResponse struct {
	Error string `json:"error"`
}

// abortWithError maps domain errors onto HTTP statuses and writes the
// JSON envelope. Unclassified errors surface as 500.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrUnknownType),
		errors.Is(err, eventdomain.ErrInvalidKind),
		errors.Is(err, partition.ErrInvalidGranularity),
		errors.Is(err, partition.ErrUnsafeIdentifier):
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}
