package domain

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is the persisted coupon entity, read-only from this core's
// perspective. Zero values mean "no constraint": MinimumAmount 0 imposes no
// floor, MaximumDiscount 0 applies no cap, UsageLimit 0 is unlimited.
type Coupon struct {
	Code            string
	DiscountType    DiscountType
	DiscountValue   float64
	MinimumAmount   float64
	MaximumDiscount float64
	UsageLimit      int
	UsedCount       int
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	IsActive        bool
}
