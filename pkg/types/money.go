package types

import "github.com/shopspring/decimal"

// CentsToDecimalString converts an int64 minor-unit amount into the
// two-decimal string the dashboard renders ("9050" cents -> "90.50").
// Arithmetic stays in integer cents everywhere; this is display-only.
func CentsToDecimalString(cents int64) string {
	return decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}
