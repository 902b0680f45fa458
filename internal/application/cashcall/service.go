// Package cashcall owns the cash call lifecycle: a DRAFT request is issued to the
// contract's active partners as one PENDING response each, and funding, default and
// excusal on those responses drive the call's status.
package cashcall

import (
	"context"
	"errors"
	"time"

	"jv-billing-backend/internal/application/allocation"
	"jv-billing-backend/internal/application/audit"
	"jv-billing-backend/internal/application/codegen"
	"jv-billing-backend/internal/application/notifications"
	"jv-billing-backend/internal/application/registry"
	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/infrastructure/database"
	"jv-billing-backend/internal/pkg/metrics"
	"jv-billing-backend/internal/pkg/money"
	"jv-billing-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB       *gorm.DB
	Registry registry.PartnerSource
	Codes    *codegen.Generator
	Notifier notifications.Notifier

	Tolerance      decimal.Decimal
	CodeMaxRetries int
	DBMaxRetries   int
	Now            func() time.Time
}

type CreateInput struct {
	ContractID   uuid.UUID
	Purpose      string
	Description  *string
	AFEID        *uuid.UUID
	RelatedJIBID *uuid.UUID
	TotalAmount  decimal.Decimal
	Currency     string     // defaults to the contract currency
	CallDate     *time.Time // defaults to now
	DueDate      time.Time
	CreatedBy    string
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Purpose      *string
	Description  *string
	AFEID        *uuid.UUID
	RelatedJIBID *uuid.UUID
	TotalAmount  *decimal.Decimal
	DueDate      *time.Time
	Actor        string
}

type ListFilter struct {
	ContractID *uuid.UUID
	AFEID      *uuid.UUID
	Status     string // effective status, OVERDUE included
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) tolerance() decimal.Decimal {
	if s.Tolerance.IsZero() {
		return allocation.DefaultTolerance
	}
	return s.Tolerance
}

func (s *Service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return database.WithRetry(ctx, s.DBMaxRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(fn)
	})
}

func lockCall(tx *gorm.DB, id uuid.UUID) (*domain.CashCall, error) {
	var c domain.CashCall
	if err := database.ForUpdate(tx).Where("cash_call_id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Rejectf(domain.ErrNotFound, "cash call %s not found", id)
		}
		return nil, err
	}
	return &c, nil
}

func loadResponses(tx *gorm.DB, callID uuid.UUID) ([]domain.CashCallResponse, error) {
	var rs []domain.CashCallResponse
	err := tx.Where("cash_call_id = ?", callID).Order("partner_id ASC").Find(&rs).Error
	return rs, err
}

func checkAmount(total decimal.Decimal, currency string) error {
	if !total.IsPositive() {
		return domain.Rejectf(domain.ErrInvalidInput, "total amount must be positive, got %s", money.Format(total))
	}
	if places := allocation.MinorUnits(currency); !validation.HasMaxPlaces(total, places) {
		return domain.Rejectf(domain.ErrInvalidInput, "amount %s has more than %d decimals for %s", total.String(), places, currency)
	}
	return nil
}

// Create opens a DRAFT cash call with a CC-YYYY-XXXX code from the call date's year.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.CashCall, error) {
	if in.ContractID == uuid.Nil {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "contract_id is required")
	}
	if !validation.Required(in.Purpose) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "purpose is required")
	}
	if !validation.Required(in.CreatedBy) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "created_by is required")
	}
	contract, err := s.Registry.GetContract(ctx, in.ContractID)
	if err != nil {
		return nil, err
	}
	currency := validation.NormalizeCurrency(in.Currency)
	if currency == "" {
		currency = contract.Currency
	}
	if !validation.IsCurrencyCode(currency) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "currency %q is not a 3-letter code", currency)
	}
	if err := checkAmount(in.TotalAmount, currency); err != nil {
		return nil, err
	}
	callDate := s.now()
	if in.CallDate != nil {
		callDate = in.CallDate.UTC()
	}
	if in.DueDate.IsZero() || in.DueDate.Before(callDate) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "due date %s must be on or after call date %s",
			in.DueDate.Format("2006-01-02"), callDate.Format("2006-01-02"))
	}

	attempts := s.CodeMaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		var created domain.CashCall
		err := s.inTx(ctx, func(tx *gorm.DB) error {
			code, err := s.Codes.NextCode(ctx, tx, codegen.ScopeCashCall, callDate.Year(), 0)
			if err != nil {
				return err
			}
			created = domain.CashCall{
				Code:         code,
				ContractID:   in.ContractID,
				AFEID:        in.AFEID,
				RelatedJIBID: in.RelatedJIBID,
				Purpose:      in.Purpose,
				Description:  in.Description,
				TotalAmount:  in.TotalAmount,
				FundedAmount: decimal.Zero,
				Currency:     currency,
				CallDate:     callDate,
				DueDate:      in.DueDate.UTC(),
				Status:       domain.CashCallDraft,
				CreatedBy:    in.CreatedBy,
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			return audit.Record(tx, audit.Entry{
				EntityType: domain.EntityCashCall,
				EntityID:   created.CashCallID,
				Action:     "create",
				To:         string(domain.CashCallDraft),
				Actor:      in.CreatedBy,
				Data:       map[string]interface{}{"code": code, "total_amount": in.TotalAmount.StringFixed(2)},
			})
		})
		if err == nil {
			metrics.Transitions.WithLabelValues(domain.EntityCashCall, string(domain.CashCallDraft)).Inc()
			return &created, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("cash call code conflict, retrying")
	}
	return nil, domain.Rejectf(domain.ErrCodeGenerationConflict, "could not assign a cash call code for %d after %d attempts",
		callDate.Year(), attempts)
}

// Update edits a DRAFT cash call.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*domain.CashCall, error) {
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		c, err := lockCall(tx, id)
		if err != nil {
			return err
		}
		if c.Status != domain.CashCallDraft {
			return domain.Rejectf(domain.ErrCashCallLocked, "cash call %s is %s; only DRAFT calls can be edited", c.Code, c.Status)
		}
		changes := map[string]interface{}{}
		if in.Purpose != nil {
			if !validation.Required(*in.Purpose) {
				return domain.Rejectf(domain.ErrInvalidInput, "purpose is required")
			}
			changes["purpose"] = *in.Purpose
		}
		if in.Description != nil {
			changes["description"] = *in.Description
		}
		if in.AFEID != nil {
			changes["afe_id"] = *in.AFEID
		}
		if in.RelatedJIBID != nil {
			changes["related_jib_id"] = *in.RelatedJIBID
		}
		if in.TotalAmount != nil {
			if err := checkAmount(*in.TotalAmount, c.Currency); err != nil {
				return err
			}
			changes["total_amount"] = *in.TotalAmount
		}
		if in.DueDate != nil {
			if in.DueDate.Before(c.CallDate) {
				return domain.Rejectf(domain.ErrInvalidInput, "due date %s must be on or after call date %s",
					in.DueDate.Format("2006-01-02"), c.CallDate.Format("2006-01-02"))
			}
			changes["due_date"] = in.DueDate.UTC()
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.Model(&domain.CashCall{}).Where("cash_call_id = ?", id).Updates(changes).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Issue moves a DRAFT call to SENT, allocating the total over the contract's active
// partners with one PENDING response each. Concurrent callers race on a conditional
// status update; the losers get ErrAlreadyFinalized.
func (s *Service) Issue(ctx context.Context, id uuid.UUID, approvedBy string) (*domain.CashCall, error) {
	if !validation.Required(approvedBy) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "approved_by is required")
	}
	var current domain.CashCall
	if err := s.DB.WithContext(ctx).Where("cash_call_id = ?", id).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Rejectf(domain.ErrNotFound, "cash call %s not found", id)
		}
		return nil, err
	}
	if err := issuable(&current); err != nil {
		return nil, err
	}

	var responses []domain.CashCallResponse
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		c, err := lockCall(tx, id)
		if err != nil {
			return err
		}
		if err := issuable(c); err != nil {
			return err
		}
		partners, err := s.Registry.WithTx(tx).GetActivePartners(ctx, c.ContractID)
		if err != nil {
			return err
		}
		allocated, err := allocation.Allocate(c.TotalAmount, partners, allocation.Options{Currency: c.Currency, Tolerance: s.tolerance()})
		if err != nil {
			return err
		}
		sent := s.now()
		res := tx.Model(&domain.CashCall{}).
			Where("cash_call_id = ? AND status = ?", id, domain.CashCallDraft).
			Updates(map[string]interface{}{
				"status":      domain.CashCallSent,
				"sent_date":   sent,
				"approved_by": approvedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.Rejectf(domain.ErrAlreadyFinalized, "cash call %s was issued by another request", c.Code)
		}

		responses = make([]domain.CashCallResponse, len(allocated))
		for i, a := range allocated {
			responses[i] = domain.CashCallResponse{
				CashCallID:      id,
				PartnerID:       a.PartnerID,
				PartnerName:     a.PartnerName,
				WorkingInterest: a.WorkingInterest,
				RequestedAmount: a.Amount,
				FundedAmount:    decimal.Zero,
				Status:          domain.ResponsePending,
			}
			responses[i].Status = responseStatus(responses[i])
		}
		if err := tx.Create(&responses).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			EntityType: domain.EntityCashCall,
			EntityID:   id,
			Action:     "issue",
			From:       string(domain.CashCallDraft),
			To:         string(domain.CashCallSent),
			Actor:      approvedBy,
			Data: map[string]interface{}{
				"total_amount": c.TotalAmount.StringFixed(2),
				"partners":     len(responses),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	out, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityCashCall, string(domain.CashCallSent)).Inc()
	notifications.Emit(ctx, s.Notifier, issuedEvent(out, responses))
	return out, nil
}

func issuable(c *domain.CashCall) error {
	switch c.Status {
	case domain.CashCallDraft:
		return nil
	case domain.CashCallCancelled:
		return domain.Rejectf(domain.ErrCashCallLocked, "cash call %s is CANCELLED", c.Code)
	}
	return domain.Rejectf(domain.ErrAlreadyFinalized, "cash call %s is already %s", c.Code, c.Status)
}

func issuedEvent(c *domain.CashCall, responses []domain.CashCallResponse) notifications.Event {
	due := c.DueDate
	ev := notifications.Event{
		Type:       notifications.CashCallIssued,
		EntityID:   c.CashCallID,
		Code:       c.Code,
		ContractID: c.ContractID,
		Currency:   c.Currency,
		DueDate:    &due,
	}
	for _, r := range responses {
		ev.PartnerIDs = append(ev.PartnerIDs, r.PartnerID)
		ev.Amounts = append(ev.Amounts, notifications.PartnerAmount{PartnerID: r.PartnerID, Amount: r.RequestedAmount.StringFixed(2)})
	}
	return ev
}

// Cancel is allowed from DRAFT or SENT while nothing has been funded.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, actor string) (*domain.CashCall, error) {
	if !validation.Required(reason) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "cancel reason is required")
	}
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		c, err := lockCall(tx, id)
		if err != nil {
			return err
		}
		responses, err := loadResponses(tx, id)
		if err != nil {
			return err
		}
		funded := decimal.Zero
		for _, r := range responses {
			funded = funded.Add(r.FundedAmount)
		}
		if funded.IsPositive() {
			return domain.Rejectf(domain.ErrCannotCancelPartiallySettled,
				"cash call %s has %s %s already funded", c.Code, money.Format(funded), c.Currency)
		}
		if c.Status != domain.CashCallDraft && c.Status != domain.CashCallSent {
			return domain.Rejectf(domain.ErrCashCallLocked, "cash call %s is %s; only DRAFT or SENT can be cancelled", c.Code, c.Status)
		}
		if err := tx.Model(&domain.CashCall{}).Where("cash_call_id = ?", id).
			Updates(map[string]interface{}{"status": domain.CashCallCancelled, "cancel_reason": reason}).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			EntityType: domain.EntityCashCall,
			EntityID:   id,
			Action:     "cancel",
			From:       string(c.Status),
			To:         string(domain.CashCallCancelled),
			Actor:      actor,
			Data:       map[string]interface{}{"reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityCashCall, string(domain.CashCallCancelled)).Inc()
	return s.Get(ctx, id)
}

// Get returns a call with its responses; Status carries the effective (OVERDUE-aware) value.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.CashCall, error) {
	var c domain.CashCall
	err := s.DB.WithContext(ctx).
		Preload("Responses", func(db *gorm.DB) *gorm.DB { return db.Order("partner_id ASC") }).
		Where("cash_call_id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Rejectf(domain.ErrNotFound, "cash call %s not found", id)
		}
		return nil, err
	}
	c.Status = EffectiveStatus(&c, s.now())
	return &c, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.CashCall, error) {
	q := s.DB.WithContext(ctx).Model(&domain.CashCall{})
	if f.ContractID != nil {
		q = q.Where("contract_id = ?", *f.ContractID)
	}
	if f.AFEID != nil {
		q = q.Where("afe_id = ?", *f.AFEID)
	}
	now := s.now()
	switch domain.CashCallStatus(f.Status) {
	case "":
	case domain.CashCallOverdue:
		q = q.Where("status IN ? AND due_date < ?", []domain.CashCallStatus{domain.CashCallSent, domain.CashCallPartiallyFunded}, now)
	case domain.CashCallSent, domain.CashCallPartiallyFunded:
		q = q.Where("status = ? AND due_date >= ?", f.Status, now)
	default:
		q = q.Where("status = ?", f.Status)
	}
	var out []domain.CashCall
	if err := q.Order("call_date DESC, code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Status = EffectiveStatus(&out[i], now)
	}
	return out, nil
}
