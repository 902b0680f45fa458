package validation

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 shape only; the registry decides which currencies a contract may use.
var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Payment / funding references: printable, no control characters.
var referenceRe = regexp.MustCompile(`^[\p{L}\p{N} ._/#:\-]{1,80}$`)

func IsCurrencyCode(code string) bool {
	return currencyRe.MatchString(code)
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsValidReference(ref string) bool {
	return referenceRe.MatchString(ref)
}

func IsValidPeriod(year, month int) bool {
	return year >= 1900 && year <= 9999 && month >= 1 && month <= 12
}

// HasMaxPlaces reports whether d needs no more than places decimals.
func HasMaxPlaces(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Required reports whether s has non-blank content.
func Required(s string) bool {
	return strings.TrimSpace(s) != ""
}
