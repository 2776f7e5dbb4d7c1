package schema

import (
	"time"

	"gorm.io/datatypes"
)

// SystemAudit represents the system_audits table - coarse audit entries for
// system actions (record stored, status changed, attachment removed)
type SystemAudit struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Actor identifies who or what performed the action
	Actor string `gorm:"column:actor;not null;type:text"`
	// Action is the performed action (record_stored, status_updated, ...)
	Action string `gorm:"column:action;not null;type:text"`
	// Entity is the affected entity type
	Entity string `gorm:"column:entity;not null;type:text"`
	// EntityID is the affected entity's identifier
	EntityID string `gorm:"column:entity_id;type:text"`
	// Payload holds action context as JSON
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb"`
	// CreatedAt is the timestamp of the action
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the SystemAudit model
func (SystemAudit) TableName() string {
	return "system_audits"
}
