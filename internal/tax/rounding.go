package tax

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies lists ISO 4217 currencies without a minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "ISK": {}, "JPY": {},
	"KMF": {}, "KRW": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// minorUnits returns the number of decimal places for a currency's minor
// unit. Unknown currencies default to 2.
func minorUnits(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// roundAmount rounds a tax amount to the currency's minor-unit precision,
// half away from zero. Rounding happens once per line, never on aggregates,
// so line sums always reconcile exactly with the reported total.
func roundAmount(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(minorUnits(currency))
}
