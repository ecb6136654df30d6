package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidCoupon      = errors.New("invalid coupon")
	ErrUsageLimitExceeded = errors.New("coupon usage limit exceeded")
)

type OutOfStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

type CartFullError struct {
	Max int
}

func (e *CartFullError) Error() string {
	return fmt.Sprintf("cart is full: at most %d distinct products allowed", e.Max)
}

type QuantityLimitError struct {
	ProductID string
	Max       int
}

func (e *QuantityLimitError) Error() string {
	return fmt.Sprintf("quantity for product %s exceeds the per-item limit of %d", e.ProductID, e.Max)
}

type ItemNotFoundError struct {
	ProductID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("product %s is not in the cart", e.ProductID)
}

type CouponNotYetActiveError struct {
	From time.Time
}

func (e *CouponNotYetActiveError) Error() string {
	return fmt.Sprintf("coupon is not active until %s", e.From.Format(time.RFC3339))
}

type CouponExpiredError struct {
	Until time.Time
}

func (e *CouponExpiredError) Error() string {
	return fmt.Sprintf("coupon expired on %s", e.Until.Format(time.RFC3339))
}

type MinimumNotMetError struct {
	Minimum float64
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("order subtotal must be at least %.2f to use this coupon", e.Minimum)
}

// ItemValidation is one row in a checkout stock re-validation report.
type ItemValidation struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
}

// CartInvalidError aggregates every failing line, not just the first.
type CartInvalidError struct {
	Items []ItemValidation
}

func (e *CartInvalidError) Error() string {
	return fmt.Sprintf("cart failed checkout validation: %d items invalid", len(e.Items))
}

// isCouponRejection reports whether err is a business-rule coupon rejection
// as opposed to an infrastructure failure.
func isCouponRejection(err error) bool {
	var (
		notYet  *CouponNotYetActiveError
		expired *CouponExpiredError
		minimum *MinimumNotMetError
	)
	return errors.Is(err, ErrInvalidCoupon) ||
		errors.Is(err, ErrUsageLimitExceeded) ||
		errors.As(err, &notYet) ||
		errors.As(err, &expired) ||
		errors.As(err, &minimum)
}
