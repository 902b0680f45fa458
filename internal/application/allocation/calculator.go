// Package allocation apportions an amount across working-interest partners.
//
// Allocate is pure: identical input (including partner order) always yields identical
// output, and the returned shares always sum to the input total exactly.
package allocation

import (
	"strings"

	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// DefaultTolerance is the allowed absolute gap between Σ working interest and 100.
	DefaultTolerance = decimal.RequireFromString("0.01")
)

// Participant is a partner's working interest at allocation time.
type Participant struct {
	PartnerID       uuid.UUID
	PartnerName     string
	IsOperator      bool
	WorkingInterest decimal.Decimal // percent, 0–100
}

// Share is one partner's allocated amount.
type Share struct {
	Participant
	Amount decimal.Decimal
}

// Options carries the currency and tolerance explicitly instead of reading global config.
type Options struct {
	Currency  string
	Tolerance decimal.Decimal
}

// minorUnits lists ISO 4217 currencies whose minor unit is not 2 decimals.
var minorUnits = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0, "UGX": 0, "XAF": 0, "XOF": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3, "LYD": 3, "IQD": 3,
}

// MinorUnits returns the number of decimals amounts in currency are rounded to.
func MinorUnits(currency string) int32 {
	if n, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return n
	}
	return 2
}

// Validate checks the partner set without allocating.
func Validate(partners []Participant, tolerance decimal.Decimal) error {
	if len(partners) == 0 {
		return domain.Rejectf(domain.ErrInvalidAllocationInput, "partner set is empty")
	}
	seen := make(map[uuid.UUID]bool, len(partners))
	sum := decimal.Zero
	for _, p := range partners {
		if p.PartnerID == uuid.Nil {
			return domain.Rejectf(domain.ErrInvalidAllocationInput, "partner id is required")
		}
		if seen[p.PartnerID] {
			return domain.Rejectf(domain.ErrInvalidAllocationInput, "partner %s appears more than once", p.PartnerID)
		}
		seen[p.PartnerID] = true
		if p.WorkingInterest.IsNegative() || p.WorkingInterest.GreaterThan(hundred) {
			return domain.Rejectf(domain.ErrInvalidAllocationInput,
				"working interest %s%% for partner %s is outside 0–100", p.WorkingInterest.String(), p.PartnerID)
		}
		sum = sum.Add(p.WorkingInterest)
	}
	if sum.Sub(hundred).Abs().GreaterThan(tolerance) {
		return domain.Rejectf(domain.ErrPartnerSumMismatch,
			"working interests sum to %s%%, expected 100%% (tolerance %s)", sum.String(), tolerance.String())
	}
	return nil
}

// Allocate splits total across partners by working interest.
//
// Each share is total*pct/100 rounded half-up to the currency's minor unit. The rounding
// residual (total − Σ rounded) goes entirely to the partner with the largest working
// interest; ties go to the lowest partner id.
func Allocate(total decimal.Decimal, partners []Participant, opts Options) ([]Share, error) {
	tolerance := opts.Tolerance
	if tolerance.IsZero() {
		tolerance = DefaultTolerance
	}
	if err := Validate(partners, tolerance); err != nil {
		return nil, err
	}
	if total.IsNegative() {
		return nil, domain.Rejectf(domain.ErrInvalidAllocationInput, "total amount %s is negative", money.Format(total))
	}
	places := MinorUnits(opts.Currency)
	if !total.Equal(total.Round(places)) {
		return nil, domain.Rejectf(domain.ErrInvalidAllocationInput,
			"total amount %s has more than %d decimals for %s", total.String(), places, opts.Currency)
	}

	shares := make([]Share, len(partners))
	if total.IsZero() {
		for i, p := range partners {
			shares[i] = Share{Participant: p, Amount: decimal.Zero}
		}
		return shares, nil
	}

	allocated := decimal.Zero
	for i, p := range partners {
		// decimal.Round rounds half away from zero, which is half-up for non-negative values.
		amt := total.Mul(p.WorkingInterest).Div(hundred).Round(places)
		shares[i] = Share{Participant: p, Amount: amt}
		allocated = allocated.Add(amt)
	}

	if residual := total.Sub(allocated); !residual.IsZero() {
		idx := residualTarget(partners)
		shares[idx].Amount = shares[idx].Amount.Add(residual)
		if shares[idx].Amount.IsNegative() {
			return nil, domain.Rejectf(domain.ErrInvalidAllocationInput,
				"total amount %s is too small to split across %d partners", money.Format(total), len(partners))
		}
	}
	return shares, nil
}

// residualTarget picks the largest working interest, lowest partner id on ties.
func residualTarget(partners []Participant) int {
	best := 0
	for i := 1; i < len(partners); i++ {
		c := partners[i].WorkingInterest.Cmp(partners[best].WorkingInterest)
		if c > 0 || (c == 0 && partners[i].PartnerID.String() < partners[best].PartnerID.String()) {
			best = i
		}
	}
	return best
}

// SumShares adds the allocated amounts.
func SumShares(shares []Share) decimal.Decimal {
	amounts := make([]decimal.Decimal, len(shares))
	for i, s := range shares {
		amounts[i] = s.Amount
	}
	return money.Sum(amounts...)
}
