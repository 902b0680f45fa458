// Package jib owns the Joint Interest Billing lifecycle: line items roll up into a DRAFT
// total, Finalize freezes it into one share per partner, and payments, disputes and
// write-offs then move the shares (and the cached JIB status) toward PAID.
package jib

import (
	"context"
	"errors"
	"fmt"
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

	Tolerance        decimal.Decimal
	PaymentTermsDays int
	CodeMaxRetries   int
	DBMaxRetries     int
	Now              func() time.Time
}

type CreateInput struct {
	ContractID   uuid.UUID
	BillingYear  int
	BillingMonth int
	Currency     string // defaults to the contract currency
	DueDate      *time.Time
	Notes        *string
	CreatedBy    string
}

type FinalizeInput struct {
	DueDate    *time.Time // defaults to sent date + PaymentTermsDays
	ApprovedBy string
}

type ListFilter struct {
	ContractID *uuid.UUID
	Status     string
	Year       int
	Month      int
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

// inTx runs fn in one transaction, retrying the whole unit on transient contention.
func (s *Service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return database.WithRetry(ctx, s.DBMaxRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(fn)
	})
}

func lockJIB(tx *gorm.DB, jibID uuid.UUID) (*domain.JointInterestBilling, error) {
	var j domain.JointInterestBilling
	if err := database.ForUpdate(tx).Where("jib_id = ?", jibID).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Rejectf(domain.ErrNotFound, "JIB %s not found", jibID)
		}
		return nil, err
	}
	return &j, nil
}

func loadShares(tx *gorm.DB, jibID uuid.UUID) ([]domain.JIBPartnerShare, error) {
	var shares []domain.JIBPartnerShare
	err := tx.Where("jib_id = ?", jibID).Order("partner_id ASC").Find(&shares).Error
	return shares, err
}

// CreateJIB opens a DRAFT JIB with zero totals for a contract period.
func (s *Service) CreateJIB(ctx context.Context, in CreateInput) (*domain.JointInterestBilling, error) {
	if in.ContractID == uuid.Nil {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "contract_id is required")
	}
	if !validation.IsValidPeriod(in.BillingYear, in.BillingMonth) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "billing period %04d-%02d is invalid", in.BillingYear, in.BillingMonth)
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

	attempts := s.CodeMaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		var created domain.JointInterestBilling
		err := s.inTx(ctx, func(tx *gorm.DB) error {
			taken, err := periodTaken(tx, in.ContractID, in.BillingYear, in.BillingMonth)
			if err != nil {
				return err
			}
			if taken {
				return domain.Rejectf(domain.ErrDuplicatePeriod, "contract %s already has a JIB for %04d-%02d",
					contract.Code, in.BillingYear, in.BillingMonth)
			}
			code, err := s.Codes.NextCode(ctx, tx, codegen.ScopeJIB, in.BillingYear, in.BillingMonth)
			if err != nil {
				return err
			}
			created = domain.JointInterestBilling{
				Code:          code,
				ContractID:    in.ContractID,
				BillingYear:   in.BillingYear,
				BillingMonth:  in.BillingMonth,
				Status:        domain.JIBDraft,
				TotalCosts:    decimal.Zero,
				OperatorShare: decimal.Zero,
				PartnersShare: decimal.Zero,
				Currency:      currency,
				DueDate:       in.DueDate,
				Notes:         in.Notes,
				CreatedBy:     in.CreatedBy,
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			return audit.Record(tx, audit.Entry{
				EntityType: domain.EntityJIB,
				EntityID:   created.JIBID,
				Action:     "create",
				To:         string(domain.JIBDraft),
				Actor:      in.CreatedBy,
				Data:       map[string]interface{}{"code": code, "currency": currency},
			})
		})
		if err == nil {
			metrics.Transitions.WithLabelValues(domain.EntityJIB, string(domain.JIBDraft)).Inc()
			return &created, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		// A concurrent create may have claimed the period rather than the code.
		if taken, perr := periodTaken(s.DB.WithContext(ctx), in.ContractID, in.BillingYear, in.BillingMonth); perr == nil && taken {
			return nil, domain.Rejectf(domain.ErrDuplicatePeriod, "contract %s already has a JIB for %04d-%02d",
				contract.Code, in.BillingYear, in.BillingMonth)
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("JIB code conflict, retrying")
	}
	return nil, domain.Rejectf(domain.ErrCodeGenerationConflict, "could not assign a JIB code for %04d-%02d after %d attempts",
		in.BillingYear, in.BillingMonth, attempts)
}

// periodTaken counts soft-deleted JIBs too; the unique index does.
func periodTaken(tx *gorm.DB, contractID uuid.UUID, year, month int) (bool, error) {
	var n int64
	err := tx.Unscoped().Model(&domain.JointInterestBilling{}).
		Where("contract_id = ? AND billing_year = ? AND billing_month = ?", contractID, year, month).
		Count(&n).Error
	return n > 0, err
}

// Finalize moves a DRAFT JIB to SENT, allocating total_costs over the contract's active
// partners and creating one share per partner. Concurrent callers race on a conditional
// status update; exactly one wins and the rest get ErrAlreadyFinalized.
func (s *Service) Finalize(ctx context.Context, jibID uuid.UUID, in FinalizeInput) (*domain.JointInterestBilling, error) {
	if !validation.Required(in.ApprovedBy) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "approved_by is required")
	}
	var current domain.JointInterestBilling
	if err := s.DB.WithContext(ctx).Where("jib_id = ?", jibID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Rejectf(domain.ErrNotFound, "JIB %s not found", jibID)
		}
		return nil, err
	}
	if err := finalizable(&current); err != nil {
		return nil, err
	}

	var shares []domain.JIBPartnerShare
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		j, err := lockJIB(tx, jibID)
		if err != nil {
			return err
		}
		if err := finalizable(j); err != nil {
			return err
		}
		partners, err := s.Registry.WithTx(tx).GetActivePartners(ctx, j.ContractID)
		if err != nil {
			return err
		}
		total, err := billableTotal(tx, jibID)
		if err != nil {
			return err
		}
		allocated, err := allocation.Allocate(total, partners, allocation.Options{Currency: j.Currency, Tolerance: s.tolerance()})
		if err != nil {
			return err
		}

		sent := s.now()
		due := in.DueDate
		if due == nil {
			d := sent.AddDate(0, 0, s.PaymentTermsDays)
			due = &d
		}
		operator := decimal.Zero
		for _, sh := range allocated {
			if sh.IsOperator {
				operator = operator.Add(sh.Amount)
			}
		}

		res := tx.Model(&domain.JointInterestBilling{}).
			Where("jib_id = ? AND status = ?", jibID, domain.JIBDraft).
			Updates(map[string]interface{}{
				"status":         domain.JIBSent,
				"total_costs":    total,
				"operator_share": operator,
				"partners_share": total.Sub(operator),
				"sent_date":      sent,
				"due_date":       *due,
				"approved_by":    in.ApprovedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.Rejectf(domain.ErrAlreadyFinalized, "JIB %s was finalized by another request", j.Code)
		}

		shares = make([]domain.JIBPartnerShare, len(allocated))
		for i, a := range allocated {
			shares[i] = domain.JIBPartnerShare{
				JIBID:            jibID,
				PartnerID:        a.PartnerID,
				PartnerName:      a.PartnerName,
				IsOperator:       a.IsOperator,
				WorkingInterest:  a.WorkingInterest,
				ShareAmount:      a.Amount,
				PaidAmount:       decimal.Zero,
				WrittenOffAmount: decimal.Zero,
				InvoiceNumber:    fmt.Sprintf("%s-%02d", j.Code, i+1),
				InvoiceDate:      sent,
			}
			// zero-interest partners keep a row but owe nothing
			shares[i].Status = shareStatus(shares[i])
		}
		if err := tx.Create(&shares).Error; err != nil {
			return err
		}

		to := AggregateStatus(domain.JIBSent, shares)
		if to == domain.JIBPaid {
			if err := tx.Model(&domain.JointInterestBilling{}).Where("jib_id = ?", jibID).
				Update("status", to).Error; err != nil {
				return err
			}
		}
		return audit.Record(tx, audit.Entry{
			EntityType: domain.EntityJIB,
			EntityID:   jibID,
			Action:     "finalize",
			From:       string(domain.JIBDraft),
			To:         string(to),
			Actor:      in.ApprovedBy,
			Data: map[string]interface{}{
				"total_costs":    total.StringFixed(2),
				"operator_share": operator.StringFixed(2),
				"partners":       len(shares),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	out, err := s.GetJIB(ctx, jibID)
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityJIB, string(out.Status)).Inc()
	notifications.Emit(ctx, s.Notifier, sentEvent(out, shares))
	return out, nil
}

func finalizable(j *domain.JointInterestBilling) error {
	switch j.Status {
	case domain.JIBDraft:
		return nil
	case domain.JIBCancelled:
		return domain.Rejectf(domain.ErrJIBLocked, "JIB %s is CANCELLED", j.Code)
	}
	return domain.Rejectf(domain.ErrAlreadyFinalized, "JIB %s is already %s", j.Code, j.Status)
}

func sentEvent(j *domain.JointInterestBilling, shares []domain.JIBPartnerShare) notifications.Event {
	ev := notifications.Event{
		Type:       notifications.JIBSent,
		EntityID:   j.JIBID,
		Code:       j.Code,
		ContractID: j.ContractID,
		Currency:   j.Currency,
		DueDate:    j.DueDate,
	}
	for _, sh := range shares {
		ev.PartnerIDs = append(ev.PartnerIDs, sh.PartnerID)
		ev.Amounts = append(ev.Amounts, notifications.PartnerAmount{PartnerID: sh.PartnerID, Amount: sh.ShareAmount.StringFixed(2)})
	}
	return ev
}

// Cancel moves a DRAFT or SENT JIB with no settlements to CANCELLED. Shares are kept.
func (s *Service) Cancel(ctx context.Context, jibID uuid.UUID, reason, actor string) (*domain.JointInterestBilling, error) {
	if !validation.Required(reason) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "cancel reason is required")
	}
	var from domain.JIBStatus
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		j, err := lockJIB(tx, jibID)
		if err != nil {
			return err
		}
		from = j.Status
		shares, err := loadShares(tx, jibID)
		if err != nil {
			return err
		}
		settled := decimal.Zero
		for _, sh := range shares {
			settled = settled.Add(sh.PaidAmount).Add(sh.WrittenOffAmount)
		}
		if settled.IsPositive() {
			return domain.Rejectf(domain.ErrCannotCancelPartiallySettled,
				"JIB %s has %s %s already settled", j.Code, money.Format(settled), j.Currency)
		}
		if j.Status != domain.JIBDraft && j.Status != domain.JIBSent {
			return domain.Rejectf(domain.ErrJIBLocked, "JIB %s is %s; only DRAFT or SENT can be cancelled", j.Code, j.Status)
		}
		if err := tx.Model(&domain.JointInterestBilling{}).Where("jib_id = ?", jibID).
			Updates(map[string]interface{}{"status": domain.JIBCancelled, "cancel_reason": reason}).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			EntityType: domain.EntityJIB,
			EntityID:   jibID,
			Action:     "cancel",
			From:       string(from),
			To:         string(domain.JIBCancelled),
			Actor:      actor,
			Data:       map[string]interface{}{"reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityJIB, string(domain.JIBCancelled)).Inc()
	return s.GetJIB(ctx, jibID)
}

// GetJIB returns a JIB with its line items and shares.
func (s *Service) GetJIB(ctx context.Context, jibID uuid.UUID) (*domain.JointInterestBilling, error) {
	var j domain.JointInterestBilling
	err := s.DB.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order(`"createdAt" ASC`) }).
		Preload("Shares", func(db *gorm.DB) *gorm.DB { return db.Order("partner_id ASC") }).
		Where("jib_id = ?", jibID).
		First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Rejectf(domain.ErrNotFound, "JIB %s not found", jibID)
		}
		return nil, err
	}
	return &j, nil
}

func (s *Service) ListJIBs(ctx context.Context, f ListFilter) ([]domain.JointInterestBilling, error) {
	q := s.DB.WithContext(ctx).Model(&domain.JointInterestBilling{})
	if f.ContractID != nil {
		q = q.Where("contract_id = ?", *f.ContractID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Year > 0 {
		q = q.Where("billing_year = ?", f.Year)
	}
	if f.Month > 0 {
		q = q.Where("billing_month = ?", f.Month)
	}
	var out []domain.JointInterestBilling
	if err := q.Order("billing_year DESC, billing_month DESC, code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListPayments returns the payment ledger of a JIB, oldest first.
func (s *Service) ListPayments(ctx context.Context, jibID uuid.UUID) ([]domain.JIBPayment, error) {
	var out []domain.JIBPayment
	if err := s.DB.WithContext(ctx).Where("jib_id = ?", jibID).Order(`paid_on ASC, "createdAt" ASC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
