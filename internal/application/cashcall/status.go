package cashcall

import (
	"time"

	"jv-billing-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// AggregateStatus derives the stored call status from its responses. OVERDUE is never
// stored; see EffectiveStatus.
//
// FUNDED when every non-EXCUSED response is FUNDED; PARTIALLY_FUNDED once anything is
// funded; otherwise SENT.
func AggregateStatus(current domain.CashCallStatus, responses []domain.CashCallResponse) domain.CashCallStatus {
	if current == domain.CashCallDraft || current == domain.CashCallCancelled || len(responses) == 0 {
		return current
	}
	complete := true
	funded := decimal.Zero
	for _, r := range responses {
		funded = funded.Add(r.FundedAmount)
		if r.Status != domain.ResponseExcused && r.Status != domain.ResponseFunded {
			complete = false
		}
	}
	switch {
	case complete:
		return domain.CashCallFunded
	case funded.IsPositive():
		return domain.CashCallPartiallyFunded
	}
	return domain.CashCallSent
}

// EffectiveStatus overlays OVERDUE on an issued call that is past due and not fully funded.
// Funding is still accepted while OVERDUE.
func EffectiveStatus(c *domain.CashCall, now time.Time) domain.CashCallStatus {
	switch c.Status {
	case domain.CashCallSent, domain.CashCallPartiallyFunded:
		if now.After(c.DueDate) {
			return domain.CashCallOverdue
		}
	}
	return c.Status
}

// responseStatus keeps DEFAULTED and EXCUSED, otherwise derives from the funded amount.
func responseStatus(r domain.CashCallResponse) domain.ResponseStatus {
	switch {
	case r.Status == domain.ResponseDefaulted || r.Status == domain.ResponseExcused:
		return r.Status
	case !r.Outstanding().IsPositive():
		return domain.ResponseFunded
	case r.FundedAmount.IsPositive():
		return domain.ResponsePartial
	}
	return domain.ResponsePending
}
