package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the allocation and billing engines. Callers test with errors.Is;
// the wrapped message carries the amounts or states that caused the rejection.
var (
	ErrInvalidAllocationInput       = errors.New("invalid allocation input")
	ErrPartnerSumMismatch           = errors.New("working interests do not sum to 100")
	ErrJIBLocked                    = errors.New("JIB is locked")
	ErrCashCallLocked               = errors.New("cash call is locked")
	ErrAlreadyFinalized             = errors.New("already finalized")
	ErrOverpaymentRejected          = errors.New("overpayment rejected")
	ErrOverfundingRejected          = errors.New("overfunding rejected")
	ErrCannotCancelPartiallySettled = errors.New("cannot cancel a partially settled record")
	ErrCodeGenerationConflict       = errors.New("code generation conflict")

	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrDuplicatePeriod = errors.New("a JIB already exists for this contract and period")
	ErrShareDisputed   = errors.New("share is under dispute")
)

// Rejectf wraps kind with a formatted detail message.
func Rejectf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Kind returns the short name of the domain error wrapped by err, or "" if none.
func Kind(err error) string {
	for _, k := range []struct {
		err  error
		name string
	}{
		{ErrPartnerSumMismatch, "PartnerSumMismatch"},
		{ErrInvalidAllocationInput, "InvalidAllocationInput"},
		{ErrJIBLocked, "JIBLocked"},
		{ErrCashCallLocked, "CashCallLocked"},
		{ErrAlreadyFinalized, "AlreadyFinalized"},
		{ErrOverpaymentRejected, "OverpaymentRejected"},
		{ErrOverfundingRejected, "OverfundingRejected"},
		{ErrCannotCancelPartiallySettled, "CannotCancelPartiallySettled"},
		{ErrCodeGenerationConflict, "CodeGenerationConflict"},
		{ErrNotFound, "NotFound"},
		{ErrInvalidInput, "InvalidInput"},
		{ErrDuplicatePeriod, "DuplicatePeriod"},
		{ErrShareDisputed, "ShareDisputed"},
	} {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
