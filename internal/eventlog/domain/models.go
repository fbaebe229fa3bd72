package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shoppulse/shoppulse/internal/entity"
	"gorm.io/datatypes"
)

// Kind is the event type consumed by reconciliation.
type Kind string

const (
	KindCreated     Kind = "created"
	KindDeactivated Kind = "deactivated"
	KindReactivated Kind = "reactivated"
)

var ErrInvalidKind = errors.New("invalid event kind")

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindCreated:
		return KindCreated, nil
	case KindDeactivated:
		return KindDeactivated, nil
	case KindReactivated:
		return KindReactivated, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Metadata keys the core cares about. Producers may attach more.
const (
	MetaEntityID = "entity_id"
	MetaName     = "name"
	MetaEmail    = "email"
)

// Event is one immutable row of the append-only log. The physical table
// is chosen per entity type by the repository; the struct itself carries
// no table binding.
type Event struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	EntityType   entity.Type       `gorm:"type:text;not null" json:"entity_type"`
	Kind         Kind              `gorm:"type:text;not null" json:"kind"`
	EventTime    time.Time         `gorm:"not null;index" json:"event_time"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb;not null" json:"metadata"`
	PartitionKey string            `gorm:"type:text;not null" json:"partition_key"`
	CreatedAt    time.Time         `gorm:"not null" json:"-"`
}

// EntityID extracts the referenced entity id from metadata; empty when
// absent or malformed.
func (e Event) EntityID() string {
	return e.Attr(MetaEntityID)
}

// Attr returns a trimmed string metadata value, or "" when missing or of
// the wrong type.
func (e Event) Attr(key string) string {
	value, ok := e.Metadata[key]
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
