package port

import (
	"context"

	"github.com/glowora/cart-core/internal/core/domain"
)

type ProductRepository interface {
	// FindActiveProductByID returns nil when no active product matches.
	FindActiveProductByID(ctx context.Context, id string) (*domain.Product, error)

	// FindPrimaryImageURL returns "" when the product has no primary image.
	FindPrimaryImageURL(ctx context.Context, productID string) (string, error)
}

type CouponRepository interface {
	// FindActiveCouponByCode returns nil when no active coupon matches.
	// The match is exact and case-sensitive.
	FindActiveCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
}
