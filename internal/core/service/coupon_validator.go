package service

import (
	"context"
	"fmt"
	"time"

	"github.com/glowora/cart-core/internal/core/domain"
	"github.com/glowora/cart-core/internal/core/pricing"
	"github.com/glowora/cart-core/internal/port"
)

// CouponApplication is the outcome of a successful validation: the coupon
// entity plus the discount it yields for the checked subtotal, already capped.
type CouponApplication struct {
	Coupon   domain.Coupon
	Discount float64
}

type CouponValidator struct {
	coupons port.CouponRepository
	now     func() time.Time
}

func NewCouponValidator(coupons port.CouponRepository) *CouponValidator {
	return &CouponValidator{coupons: coupons, now: time.Now}
}

// Validate checks code against its validity window, usage limit and minimum
// order amount. Rejections come back as the typed errors in errors.go so the
// caller can render a precise message.
func (v *CouponValidator) Validate(ctx context.Context, code string, subtotal float64) (*CouponApplication, error) {
	c, err := v.coupons.FindActiveCouponByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("look up coupon %q: %w", code, err)
	}
	if c == nil || !c.IsActive {
		return nil, ErrInvalidCoupon
	}

	now := v.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, &CouponNotYetActiveError{From: *c.ValidFrom}
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, &CouponExpiredError{Until: *c.ValidUntil}
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return nil, ErrUsageLimitExceeded
	}
	if c.MinimumAmount > 0 && subtotal < c.MinimumAmount {
		return nil, &MinimumNotMetError{Minimum: c.MinimumAmount}
	}

	return &CouponApplication{
		Coupon:   *c,
		Discount: pricing.Discount(c, subtotal),
	}, nil
}
