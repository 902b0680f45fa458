// Package codegen assigns human-readable billing codes: JIB-YYYY-MM-XXXX and CC-YYYY-XXXX.
//
// Numbers come from a Sequencer and reset per scope period (monthly for JIBs, yearly for
// cash calls). Sequences may skip numbers; they never repeat one. The unique index on each
// table's code column is the final backstop, and callers retry on conflict.
package codegen

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"jv-billing-backend/internal/domain"

	"gorm.io/gorm"
)

type Scope string

const (
	ScopeJIB      Scope = "JIB"
	ScopeCashCall Scope = "CC"
)

// maxSkips bounds how many already-taken numbers NextCode steps over before giving up.
const maxSkips = 50

// Sequencer hands out increasing numbers per scope and period.
type Sequencer interface {
	Next(ctx context.Context, tx *gorm.DB, scope Scope, period string) (int64, error)
}

type Generator struct {
	Sequencer Sequencer
}

// Period returns the reset window key: "2025-03" for JIBs, "2025" for cash calls.
func Period(scope Scope, year, month int) string {
	if scope == ScopeJIB {
		return fmt.Sprintf("%04d-%02d", year, month)
	}
	return fmt.Sprintf("%04d", year)
}

// Format renders a code for the given period and sequence number.
func Format(scope Scope, period string, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", scope, period, seq)
}

// ParseSeq extracts the trailing sequence number of a code in scope/period.
func ParseSeq(scope Scope, period, code string) (int64, bool) {
	prefix := string(scope) + "-" + period + "-"
	if !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(code, prefix), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// NextCode returns the next free code for scope in the given year (and month for JIBs).
// tx must be the transaction that will insert the row carrying the code.
func (g *Generator) NextCode(ctx context.Context, tx *gorm.DB, scope Scope, year, month int) (string, error) {
	if scope == ScopeJIB && (month < 1 || month > 12) {
		return "", domain.Rejectf(domain.ErrInvalidInput, "billing month %d is outside 1–12", month)
	}
	period := Period(scope, year, month)
	for i := 0; i < maxSkips; i++ {
		n, err := g.Sequencer.Next(ctx, tx, scope, period)
		if err != nil {
			return "", err
		}
		code := Format(scope, period, n)
		taken, err := codeTaken(tx, scope, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.Rejectf(domain.ErrCodeGenerationConflict, "no free %s code for period %s after %d attempts", scope, period, maxSkips)
}

func scopeModel(scope Scope) interface{} {
	if scope == ScopeJIB {
		return &domain.JointInterestBilling{}
	}
	return &domain.CashCall{}
}

// codeTaken includes soft-deleted rows: codes are never reissued.
func codeTaken(tx *gorm.DB, scope Scope, code string) (bool, error) {
	var n int64
	if err := tx.Unscoped().Model(scopeModel(scope)).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// maxIssued returns the highest sequence number already used in scope/period.
func maxIssued(tx *gorm.DB, scope Scope, period string) (int64, error) {
	var codes []string
	prefix := string(scope) + "-" + period + "-"
	if err := tx.Unscoped().Model(scopeModel(scope)).Where("code LIKE ?", prefix+"%").Pluck("code", &codes).Error; err != nil {
		return 0, err
	}
	var max int64
	for _, c := range codes {
		if n, ok := ParseSeq(scope, period, c); ok && n > max {
			max = n
		}
	}
	return max, nil
}
