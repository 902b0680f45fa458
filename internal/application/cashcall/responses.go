package cashcall

import (
	"context"
	"errors"
	"time"

	"jv-billing-backend/internal/application/allocation"
	"jv-billing-backend/internal/application/audit"
	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/pkg/metrics"
	"jv-billing-backend/internal/pkg/money"
	"jv-billing-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type FundingInput struct {
	Amount    decimal.Decimal
	Reference string
	FundedOn  *time.Time // defaults to now
	Actor     string
}

type DefaultInput struct {
	Penalty     *decimal.Decimal // computed under the contract's terms, stored as given
	DefaultDate *time.Time       // defaults to now
	Actor       string
}

// open lists the stored call statuses whose responses may still change.
var open = map[domain.CashCallStatus]bool{
	domain.CashCallSent:            true,
	domain.CashCallPartiallyFunded: true,
	domain.CashCallFunded:          true,
}

// responseTx loads a response under its locked parent call.
func responseTx(tx *gorm.DB, responseID uuid.UUID) (*domain.CashCallResponse, *domain.CashCall, error) {
	var r domain.CashCallResponse
	if err := tx.Where("response_id = ?", responseID).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.Rejectf(domain.ErrNotFound, "cash call response %s not found", responseID)
		}
		return nil, nil, err
	}
	c, err := lockCall(tx, r.CashCallID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Where("response_id = ?", responseID).First(&r).Error; err != nil {
		return nil, nil, err
	}
	if !open[c.Status] {
		return nil, nil, domain.Rejectf(domain.ErrCashCallLocked, "cash call %s is %s; responses cannot change", c.Code, c.Status)
	}
	return &r, c, nil
}

// saveResponse writes the response, then recomputes funded_amount and status of the call
// from a fresh read of all its responses.
func saveResponse(tx *gorm.DB, r *domain.CashCallResponse, from domain.ResponseStatus, c *domain.CashCall, actor, action string, data map[string]interface{}) (domain.CashCallStatus, error) {
	r.Status = responseStatus(*r)
	if err := tx.Model(&domain.CashCallResponse{}).Where("response_id = ?", r.ResponseID).Updates(map[string]interface{}{
		"funded_amount":     r.FundedAmount,
		"status":            r.Status,
		"funding_date":      r.FundingDate,
		"payment_reference": r.PaymentReference,
		"default_date":      r.DefaultDate,
		"default_penalty":   r.DefaultPenalty,
		"excuse_reason":     r.ExcuseReason,
	}).Error; err != nil {
		return "", err
	}
	if err := audit.Record(tx, audit.Entry{
		EntityType: domain.EntityCashCallResponse,
		EntityID:   r.ResponseID,
		Action:     action,
		From:       string(from),
		To:         string(r.Status),
		Actor:      actor,
		Data:       data,
	}); err != nil {
		return "", err
	}

	responses, err := loadResponses(tx, c.CashCallID)
	if err != nil {
		return "", err
	}
	funded := decimal.Zero
	for _, x := range responses {
		funded = funded.Add(x.FundedAmount)
	}
	to := AggregateStatus(c.Status, responses)
	if err := tx.Model(&domain.CashCall{}).Where("cash_call_id = ?", c.CashCallID).
		Updates(map[string]interface{}{"funded_amount": funded, "status": to}).Error; err != nil {
		return "", err
	}
	if to == c.Status {
		return to, nil
	}
	return to, audit.Record(tx, audit.Entry{
		EntityType: domain.EntityCashCall,
		EntityID:   c.CashCallID,
		Action:     "aggregate",
		From:       string(c.Status),
		To:         string(to),
		Actor:      actor,
		Data:       map[string]interface{}{"funded_amount": funded.StringFixed(2)},
	})
}

// RecordFunding applies a partner's funding. It may be partial but never more than the
// response's outstanding requested amount.
func (s *Service) RecordFunding(ctx context.Context, responseID uuid.UUID, in FundingInput) (*domain.CashCallResponse, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "funding amount must be positive, got %s", money.Format(in.Amount))
	}
	if !validation.IsValidReference(in.Reference) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "payment reference %q is invalid", in.Reference)
	}
	if !validation.Required(in.Actor) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "actor is required")
	}
	fundedOn := s.now()
	if in.FundedOn != nil {
		fundedOn = in.FundedOn.UTC()
	}

	var (
		out    domain.CashCallResponse
		status domain.CashCallStatus
	)
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		r, c, err := responseTx(tx, responseID)
		if err != nil {
			return err
		}
		if r.Status == domain.ResponseDefaulted || r.Status == domain.ResponseExcused {
			return domain.Rejectf(domain.ErrCashCallLocked, "response of %s on %s is %s", r.PartnerName, c.Code, r.Status)
		}
		if places := allocation.MinorUnits(c.Currency); !validation.HasMaxPlaces(in.Amount, places) {
			return domain.Rejectf(domain.ErrInvalidInput, "amount %s has more than %d decimals for %s", in.Amount.String(), places, c.Currency)
		}
		outstanding := r.Outstanding()
		if in.Amount.GreaterThan(outstanding) {
			return domain.Rejectf(domain.ErrOverfundingRejected, "remaining requested is %s, attempted funding %s",
				money.Format(outstanding), money.Format(in.Amount))
		}
		from := r.Status
		r.FundedAmount = r.FundedAmount.Add(in.Amount)
		r.FundingDate = &fundedOn
		ref := in.Reference
		r.PaymentReference = &ref
		status, err = saveResponse(tx, r, from, c, in.Actor, "funding", map[string]interface{}{
			"amount":      in.Amount.StringFixed(2),
			"reference":   in.Reference,
			"outstanding": r.Outstanding().StringFixed(2),
		})
		out = *r
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityCashCallResponse, string(out.Status)).Inc()
	metrics.Transitions.WithLabelValues(domain.EntityCashCall, string(status)).Inc()
	return &out, nil
}

// DeclareDefault marks an unfunded or partially funded response as DEFAULTED. Only allowed
// once the call is past due.
func (s *Service) DeclareDefault(ctx context.Context, responseID uuid.UUID, in DefaultInput) (*domain.CashCallResponse, error) {
	if in.Penalty != nil && in.Penalty.IsNegative() {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "default penalty cannot be negative, got %s", money.Format(*in.Penalty))
	}
	now := s.now()
	var out domain.CashCallResponse
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		r, c, err := responseTx(tx, responseID)
		if err != nil {
			return err
		}
		if !now.After(c.DueDate) {
			return domain.Rejectf(domain.ErrCashCallLocked, "cash call %s is not past due (due %s)", c.Code, c.DueDate.Format("2006-01-02"))
		}
		if r.Status != domain.ResponsePending && r.Status != domain.ResponsePartial {
			return domain.Rejectf(domain.ErrCashCallLocked, "response of %s on %s is %s and cannot default", r.PartnerName, c.Code, r.Status)
		}
		from := r.Status
		defaultDate := now
		if in.DefaultDate != nil {
			defaultDate = in.DefaultDate.UTC()
		}
		r.Status = domain.ResponseDefaulted
		r.DefaultDate = &defaultDate
		if in.Penalty != nil {
			r.DefaultPenalty = decimal.NullDecimal{Decimal: *in.Penalty, Valid: true}
		}
		data := map[string]interface{}{"outstanding": r.Outstanding().StringFixed(2)}
		if in.Penalty != nil {
			data["penalty"] = in.Penalty.StringFixed(2)
		}
		_, err = saveResponse(tx, r, from, c, in.Actor, "default", data)
		out = *r
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityCashCallResponse, string(domain.ResponseDefaulted)).Inc()
	return &out, nil
}

// MarkExcused removes an unfunded response from the call's completion check.
func (s *Service) MarkExcused(ctx context.Context, responseID uuid.UUID, reason, actor string) (*domain.CashCallResponse, error) {
	if !validation.Required(reason) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "excuse reason is required")
	}
	var (
		out    domain.CashCallResponse
		status domain.CashCallStatus
	)
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		r, c, err := responseTx(tx, responseID)
		if err != nil {
			return err
		}
		if r.Status != domain.ResponsePending || r.FundedAmount.IsPositive() {
			return domain.Rejectf(domain.ErrCashCallLocked, "response of %s on %s is %s with %s funded; only unfunded PENDING responses can be excused",
				r.PartnerName, c.Code, r.Status, money.Format(r.FundedAmount))
		}
		r.Status = domain.ResponseExcused
		r.ExcuseReason = &reason
		status, err = saveResponse(tx, r, domain.ResponsePending, c, actor, "excuse", map[string]interface{}{"reason": reason})
		out = *r
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityCashCallResponse, string(domain.ResponseExcused)).Inc()
	metrics.Transitions.WithLabelValues(domain.EntityCashCall, string(status)).Inc()
	return &out, nil
}
