package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit entity types.
const (
	EntityJIB              = "JIB"
	EntityJIBShare         = "JIB_SHARE"
	EntityCashCall         = "CASH_CALL"
	EntityCashCallResponse = "CASH_CALL_RESPONSE"
)

// AuditEvent is an append-only status transition record.
type AuditEvent struct {
	EventID    uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	EntityType string         `gorm:"column:entity_type;type:varchar(30);not null" json:"entity_type"`
	EntityID   uuid.UUID      `gorm:"column:entity_id;type:uuid;not null;index" json:"entity_id"`
	Action     string         `gorm:"column:action;type:varchar(40);not null" json:"action"`
	FromStatus *string        `gorm:"column:from_status;type:varchar(20)" json:"from_status"`
	ToStatus   *string        `gorm:"column:to_status;type:varchar(20)" json:"to_status"`
	Actor      string         `gorm:"column:actor;not null" json:"actor"`
	EventData  datatypes.JSON `gorm:"column:event_data;type:jsonb;not null" json:"event_data"`
	CreatedAt  time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (AuditEvent) TableName() string {
	return "AuditEvents"
}

func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
