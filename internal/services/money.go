package services

import "github.com/shopspring/decimal"

var (
	freeShippingFrom = decimal.NewFromInt(200)
	flatShipping     = decimal.NewFromInt(15)
)

// ShippingFor charges a flat fee once per checkout, waived from 200 upwards.
func ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(freeShippingFrom) {
		return decimal.Zero
	}
	return flatShipping
}

// SplitShipping spreads shipping over lines in proportion to their subtotals.
// Each share is rounded to cents and the last line absorbs the remainder, so
// the shares always add up to shipping exactly.
func SplitShipping(shipping decimal.Decimal, subtotals []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(subtotals))
	if len(subtotals) == 0 {
		return shares
	}
	total := decimal.Sum(decimal.Zero, subtotals...)
	if shipping.IsZero() || total.IsZero() {
		for i := range shares {
			shares[i] = decimal.Zero
		}
		shares[len(shares)-1] = shipping
		return shares
	}
	assigned := decimal.Zero
	for i, sub := range subtotals[:len(subtotals)-1] {
		shares[i] = shipping.Mul(sub).Div(total).Round(2)
		assigned = assigned.Add(shares[i])
	}
	shares[len(shares)-1] = shipping.Sub(assigned)
	return shares
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
