// Package pricing derives the subtotal, tax and total of a set of line items.
// Amounts are kept at full precision; rounding to cents only happens in Display.
package pricing

import (
	"github.com/shopspring/decimal"

	"nexuspos/internal/domain"
)

const displayPlaces = 2

// Compute returns the pricing snapshot for items at taxRatePercent (8 means 8%).
func Compute(items []domain.LineItem, taxRatePercent decimal.Decimal) domain.Pricing {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	tax := subtotal.Mul(taxRatePercent).Shift(-2)
	return domain.Pricing{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// Display formats a snapshot for the cashier, rounding each amount half away from zero.
func Display(p domain.Pricing, currency domain.Currency) domain.DisplayTotals {
	return domain.DisplayTotals{
		Currency: currency.Code,
		Subtotal: FormatAmount(currency.Symbol, p.Subtotal),
		Tax:      FormatAmount(currency.Symbol, p.Tax),
		Total:    FormatAmount(currency.Symbol, p.Total),
	}
}

func FormatAmount(symbol string, amount decimal.Decimal) string {
	return symbol + amount.StringFixed(displayPlaces)
}

// ValidTaxRate reports whether rate is a usable percentage.
func ValidTaxRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(100))
}
