package jib

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

type PaymentInput struct {
	Amount    decimal.Decimal
	Reference string
	PaidOn    *time.Time // defaults to now
	Actor     string
}

type ResolveInput struct {
	Resolution string
	WriteOff   decimal.Decimal // optional, settles part of the remaining balance without cash
	Actor      string
}

// payable lists the JIB statuses that accept share settlements.
var payable = map[domain.JIBStatus]bool{
	domain.JIBSent:          true,
	domain.JIBPartiallyPaid: true,
	domain.JIBDisputed:      true,
}

// shareTx loads a share and locks its parent JIB, the unit every share mutation runs under.
func shareTx(tx *gorm.DB, shareID uuid.UUID) (*domain.JIBPartnerShare, *domain.JointInterestBilling, error) {
	var sh domain.JIBPartnerShare
	if err := tx.Where("share_id = ?", shareID).First(&sh).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.Rejectf(domain.ErrNotFound, "share %s not found", shareID)
		}
		return nil, nil, err
	}
	j, err := lockJIB(tx, sh.JIBID)
	if err != nil {
		return nil, nil, err
	}
	// re-read under the parent lock
	if err := tx.Where("share_id = ?", shareID).First(&sh).Error; err != nil {
		return nil, nil, err
	}
	return &sh, j, nil
}

// saveShare persists the share's settlement fields and recomputes the JIB status from a
// fresh read of every share in the same transaction.
func saveShare(tx *gorm.DB, sh *domain.JIBPartnerShare, from domain.ShareStatus, j *domain.JointInterestBilling, actor, action string, data map[string]interface{}) (domain.JIBStatus, error) {
	sh.Status = shareStatus(*sh)
	if err := tx.Model(&domain.JIBPartnerShare{}).Where("share_id = ?", sh.ShareID).Updates(map[string]interface{}{
		"paid_amount":        sh.PaidAmount,
		"written_off_amount": sh.WrittenOffAmount,
		"status":             sh.Status,
		"payment_date":       sh.PaymentDate,
		"payment_reference":  sh.PaymentReference,
		"dispute_reason":     sh.DisputeReason,
		"dispute_date":       sh.DisputeDate,
		"dispute_resolved":   sh.DisputeResolved,
		"dispute_resolution": sh.DisputeResolution,
	}).Error; err != nil {
		return "", err
	}
	if err := audit.Record(tx, audit.Entry{
		EntityType: domain.EntityJIBShare,
		EntityID:   sh.ShareID,
		Action:     action,
		From:       string(from),
		To:         string(sh.Status),
		Actor:      actor,
		Data:       data,
	}); err != nil {
		return "", err
	}

	shares, err := loadShares(tx, j.JIBID)
	if err != nil {
		return "", err
	}
	to := AggregateStatus(j.Status, shares)
	if to == j.Status {
		return to, nil
	}
	if err := tx.Model(&domain.JointInterestBilling{}).Where("jib_id = ?", j.JIBID).Update("status", to).Error; err != nil {
		return "", err
	}
	return to, audit.Record(tx, audit.Entry{
		EntityType: domain.EntityJIB,
		EntityID:   j.JIBID,
		Action:     "aggregate",
		From:       string(j.Status),
		To:         string(to),
		Actor:      actor,
		Data:       map[string]interface{}{"share_id": sh.ShareID.String()},
	})
}

// RecordPayment applies a payment to a share. The amount must be positive and no more than
// the share's remaining balance.
func (s *Service) RecordPayment(ctx context.Context, shareID uuid.UUID, in PaymentInput) (*domain.JIBPartnerShare, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "payment amount must be positive, got %s", money.Format(in.Amount))
	}
	if !validation.IsValidReference(in.Reference) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "payment reference %q is invalid", in.Reference)
	}
	if !validation.Required(in.Actor) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "actor is required")
	}
	paidOn := s.now()
	if in.PaidOn != nil {
		paidOn = in.PaidOn.UTC()
	}

	var (
		out    domain.JIBPartnerShare
		status domain.JIBStatus
	)
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		sh, j, err := shareTx(tx, shareID)
		if err != nil {
			return err
		}
		if !payable[j.Status] {
			return domain.Rejectf(domain.ErrJIBLocked, "JIB %s is %s; payments are not accepted", j.Code, j.Status)
		}
		if sh.HasOpenDispute() {
			return domain.Rejectf(domain.ErrShareDisputed, "share %s is disputed (%s); resolve the dispute first",
				sh.InvoiceNumber, deref(sh.DisputeReason))
		}
		if places := allocation.MinorUnits(j.Currency); !validation.HasMaxPlaces(in.Amount, places) {
			return domain.Rejectf(domain.ErrInvalidInput, "amount %s has more than %d decimals for %s", in.Amount.String(), places, j.Currency)
		}
		remaining := sh.Remaining()
		if in.Amount.GreaterThan(remaining) {
			return domain.Rejectf(domain.ErrOverpaymentRejected, "remaining balance is %s, attempted payment %s",
				money.Format(remaining), money.Format(in.Amount))
		}

		if err := tx.Create(&domain.JIBPayment{
			ShareID:    sh.ShareID,
			JIBID:      j.JIBID,
			Amount:     in.Amount,
			Reference:  in.Reference,
			PaidOn:     paidOn,
			RecordedBy: in.Actor,
		}).Error; err != nil {
			return err
		}
		sh.PaidAmount = sh.PaidAmount.Add(in.Amount)
		sh.PaymentDate = &paidOn
		ref := in.Reference
		sh.PaymentReference = &ref

		status, err = saveShare(tx, sh, sh.Status, j, in.Actor, "payment", map[string]interface{}{
			"amount":    in.Amount.StringFixed(2),
			"reference": in.Reference,
			"remaining": sh.Remaining().StringFixed(2),
		})
		out = *sh
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityJIBShare, string(out.Status)).Inc()
	metrics.Transitions.WithLabelValues(domain.EntityJIB, string(status)).Inc()
	return &out, nil
}

// DisputeShare flags an unpaid or partially paid share. The reason is required.
func (s *Service) DisputeShare(ctx context.Context, shareID uuid.UUID, reason, actor string) (*domain.JIBPartnerShare, error) {
	if !validation.Required(reason) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "dispute reason is required")
	}
	var out domain.JIBPartnerShare
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		sh, j, err := shareTx(tx, shareID)
		if err != nil {
			return err
		}
		if !payable[j.Status] {
			return domain.Rejectf(domain.ErrJIBLocked, "JIB %s is %s; shares cannot be disputed", j.Code, j.Status)
		}
		switch {
		case sh.HasOpenDispute():
			return domain.Rejectf(domain.ErrShareDisputed, "share %s is already disputed", sh.InvoiceNumber)
		case sh.Status == domain.SharePaid:
			return domain.Rejectf(domain.ErrInvalidInput, "share %s is PAID and cannot be disputed", sh.InvoiceNumber)
		}
		now := s.now()
		from := sh.Status
		sh.Status = domain.ShareDisputed
		sh.DisputeReason = &reason
		sh.DisputeDate = &now
		sh.DisputeResolved = false
		sh.DisputeResolution = nil
		_, err = saveShare(tx, sh, from, j, actor, "dispute", map[string]interface{}{"reason": reason})
		out = *sh
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityJIBShare, string(domain.ShareDisputed)).Inc()
	return &out, nil
}

// ResolveDispute closes an open dispute with a note and an optional write-off.
func (s *Service) ResolveDispute(ctx context.Context, shareID uuid.UUID, in ResolveInput) (*domain.JIBPartnerShare, error) {
	if !validation.Required(in.Resolution) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "resolution note is required")
	}
	if in.WriteOff.IsNegative() {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "write-off cannot be negative, got %s", money.Format(in.WriteOff))
	}
	var out domain.JIBPartnerShare
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		sh, j, err := shareTx(tx, shareID)
		if err != nil {
			return err
		}
		if !sh.HasOpenDispute() {
			return domain.Rejectf(domain.ErrInvalidInput, "share %s has no open dispute", sh.InvoiceNumber)
		}
		if remaining := sh.Remaining(); in.WriteOff.GreaterThan(remaining) {
			return domain.Rejectf(domain.ErrOverpaymentRejected, "remaining balance is %s, attempted write-off %s",
				money.Format(remaining), money.Format(in.WriteOff))
		}
		note := in.Resolution
		sh.DisputeResolved = true
		sh.DisputeResolution = &note
		sh.WrittenOffAmount = sh.WrittenOffAmount.Add(in.WriteOff)
		_, err = saveShare(tx, sh, sh.Status, j, in.Actor, "resolve_dispute", map[string]interface{}{
			"resolution": note,
			"write_off":  in.WriteOff.StringFixed(2),
		})
		out = *sh
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(domain.EntityJIBShare, string(out.Status)).Inc()
	return &out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
