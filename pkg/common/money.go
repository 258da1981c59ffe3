package common

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencySymbols = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"GHS": "GH₵",
	"KES": "KSh",
}

// FormatAmount renders a whole-currency display string such as ₦500,000:
// locale grouping, zero decimal digits, half-up rounding. Every consumer
// (receipts, API responses) goes through this so output stays consistent.
func FormatAmount(amount decimal.Decimal, code string) string {
	whole := amount.Round(0).IntPart()
	p := message.NewPrinter(language.English)

	symbol, ok := currencySymbols[code]
	if !ok {
		if unit, err := currency.ParseISO(code); err == nil {
			symbol = unit.String() + " "
		} else {
			symbol = code + " "
		}
	}

	if whole < 0 {
		return "-" + symbol + p.Sprintf("%d", -whole)
	}
	return symbol + p.Sprintf("%d", whole)
}

// MinorUnits converts a two-decimal amount into the integer minor unit
// (kobo, cents) that card gateways expect.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
