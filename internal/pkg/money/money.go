// Package money holds amount helpers shared by the billing engines.
package money

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Format renders an amount with thousands separators and two decimals, e.g. 1,200.00.
// Used only for human-readable messages; never for stored values.
func Format(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

// Sum adds amounts exactly.
func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}
