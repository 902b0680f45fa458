package audit

import (
	"context"
	"encoding/json"

	"jv-billing-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry describes one status transition to append.
type Entry struct {
	EntityType string
	EntityID   uuid.UUID
	Action     string
	From       string
	To         string
	Actor      string
	Data       map[string]interface{}
}

// Record appends an audit event using tx, so it commits or rolls back with the transition.
func Record(tx *gorm.DB, e Entry) error {
	data := e.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	ev := domain.AuditEvent{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		FromStatus: strPtr(e.From),
		ToStatus:   strPtr(e.To),
		Actor:      e.Actor,
		EventData:  datatypes.JSON(payload),
	}
	return tx.Create(&ev).Error
}

type Service struct {
	DB *gorm.DB
}

// ListForEntity returns the trail for an entity, oldest first.
func (s *Service) ListForEntity(ctx context.Context, entityID uuid.UUID) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	if err := s.DB.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order(`"createdAt" ASC`).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
