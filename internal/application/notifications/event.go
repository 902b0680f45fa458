// Package notifications publishes billing events for downstream email/WhatsApp delivery.
// Publishing is fire-and-forget: failures are logged and counted, never returned to the
// transaction that produced the event.
package notifications

import (
	"context"
	"time"

	"jv-billing-backend/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	JIBSent         EventType = "JIB_SENT"
	JIBOverdue      EventType = "JIB_OVERDUE"
	CashCallIssued  EventType = "CASHCALL_ISSUED"
	CashCallOverdue EventType = "CASHCALL_OVERDUE"
)

// PartnerAmount is one partner's amount in an event; amounts travel as fixed-point strings.
type PartnerAmount struct {
	PartnerID uuid.UUID `json:"partner_id"`
	Amount    string    `json:"amount"`
}

// Event is the outbound payload.
type Event struct {
	Type       EventType       `json:"type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Code       string          `json:"code"`
	ContractID uuid.UUID       `json:"contract_id"`
	Currency   string          `json:"currency"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	PartnerIDs []uuid.UUID     `json:"partner_ids"`
	Amounts    []PartnerAmount `json:"amounts"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier hands events to the notification collaborator.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// Emit publishes ev and swallows any failure after logging it.
func Emit(ctx context.Context, n Notifier, ev Event) {
	if n == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := n.Publish(ctx, ev); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(ev.Type)).Inc()
		log.Error().Err(err).Str("type", string(ev.Type)).Str("code", ev.Code).Msg("notification publish failed")
	}
}

// LogNotifier writes events to the structured log; used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Publish(ctx context.Context, ev Event) error {
	log.Info().
		Str("type", string(ev.Type)).
		Str("code", ev.Code).
		Str("contract_id", ev.ContractID.String()).
		Int("partners", len(ev.PartnerIDs)).
		Msg("notification event")
	return nil
}
