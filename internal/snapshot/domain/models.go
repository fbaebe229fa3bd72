package domain

import (
	"time"
)

// StateRow is one entity's reconciled state as of a partition date. Rows
// are written exclusively by the reconciler; producers never touch state
// tables.
type StateRow struct {
	EntityID string `gorm:"column:entity_id" json:"entity_id"`
	Name     string `gorm:"column:name" json:"name"`
	Email    string `gorm:"column:email" json:"email"`

	// Status is derived: true iff DeactivatedTime is null.
	Status bool `gorm:"column:status" json:"status"`

	// CreatedTime is the first-ever creation event time. Null only when a
	// deactivation arrived for an entity whose creation was never seen.
	CreatedTime     *time.Time `gorm:"column:created_time" json:"created_time"`
	DeactivatedTime *time.Time `gorm:"column:deactivated_time" json:"deactivated_time"`

	PartitionKey string    `gorm:"column:partition_key" json:"partition_key"`
	EventTime    time.Time `gorm:"column:event_time" json:"event_time"`
}
