package utils

import (
	"github.com/shopspring/decimal"
)

// ToMajor converts an amount in paise to rupees without going through floats.
func ToMajor(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// FormatMajor renders paise as a two-decimal rupee string, e.g. 50000 -> "500.00".
func FormatMajor(paise int64) string {
	return ToMajor(paise).StringFixed(2)
}
