package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/glowora/cart-core/internal/core/domain"
)

// Monetary amounts are in currency units.
const (
	FreeShippingThreshold = 500.0
	FlatShippingFee       = 50.0
	TaxRate               = 0.18
	CODSurcharge          = 25.0
)

// Subtotal sums price * quantity over all lines, unrounded.
func Subtotal(items []domain.CartItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Price * float64(it.Quantity)
	}
	return sum
}

// Discount applies the coupon rule to a subtotal. Percentage discounts are
// capped by MaximumDiscount when set; the result never goes negative and
// never exceeds the subtotal.
func Discount(c *domain.Coupon, subtotal float64) float64 {
	if c == nil || subtotal <= 0 {
		return 0
	}

	var d float64
	switch c.DiscountType {
	case domain.DiscountPercentage:
		d = subtotal * c.DiscountValue / 100
		if c.MaximumDiscount > 0 && d > c.MaximumDiscount {
			d = c.MaximumDiscount
		}
	case domain.DiscountFixed:
		d = c.DiscountValue
	}

	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ComputeTotals derives the full totals breakdown for a set of cart lines.
// Shipping is free once the discounted subtotal reaches the threshold; COD
// adds a flat surcharge on top. Tax applies to the discounted subtotal plus
// shipping. Rounding happens once, at final assignment, so intermediate
// terms do not compound rounding error.
func ComputeTotals(items []domain.CartItem, coupon *domain.Coupon, method domain.PaymentMethod) domain.Totals {
	subtotal := Subtotal(items)
	discount := Discount(coupon, subtotal)
	discounted := subtotal - discount

	var shipping float64
	if discounted < FreeShippingThreshold {
		shipping = FlatShippingFee
	}
	if method == domain.PaymentCOD {
		shipping += CODSurcharge
	}

	tax := (discounted + shipping) * TaxRate
	total := discounted + shipping + tax

	return domain.Totals{
		Subtotal: round2(subtotal),
		Discount: round2(discount),
		Shipping: round2(shipping),
		Tax:      round2(tax),
		Total:    round2(total),
	}
}

// round2 rounds half-up to two decimal places.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
