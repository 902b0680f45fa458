package jib

import (
	"jv-billing-backend/internal/domain"
)

// AggregateStatus derives the JIB status from its shares. DRAFT and CANCELLED are never
// derived; they only change through Finalize and Cancel.
//
// PAID when every share is PAID; otherwise DISPUTED while any dispute is open; otherwise
// PARTIALLY_PAID once anything has been paid or written off; otherwise SENT.
func AggregateStatus(current domain.JIBStatus, shares []domain.JIBPartnerShare) domain.JIBStatus {
	if current == domain.JIBDraft || current == domain.JIBCancelled || len(shares) == 0 {
		return current
	}
	allPaid, disputed, settled := true, false, false
	for _, sh := range shares {
		if sh.Status != domain.SharePaid {
			allPaid = false
		}
		if sh.HasOpenDispute() {
			disputed = true
		}
		if sh.PaidAmount.IsPositive() || sh.WrittenOffAmount.IsPositive() {
			settled = true
		}
	}
	switch {
	case allPaid:
		return domain.JIBPaid
	case disputed:
		return domain.JIBDisputed
	case settled:
		return domain.JIBPartiallyPaid
	}
	return domain.JIBSent
}

// shareStatus derives a share's status from its balances. An open dispute wins.
func shareStatus(sh domain.JIBPartnerShare) domain.ShareStatus {
	switch {
	case sh.HasOpenDispute():
		return domain.ShareDisputed
	case !sh.Remaining().IsPositive():
		return domain.SharePaid
	case sh.PaidAmount.IsPositive() || sh.WrittenOffAmount.IsPositive():
		return domain.SharePartiallyPaid
	}
	return domain.ShareInvoiced
}
