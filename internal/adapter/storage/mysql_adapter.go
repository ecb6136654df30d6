package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/glowora/cart-core/internal/core/domain"
)

// MySQLAdapter provides read-only lookups against the catalog and coupon
// tables. The cart core never writes to MySQL.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) FindActiveProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock_quantity, COALESCE(brand, ''), COALESCE(sku, '')
		FROM products WHERE id = ? AND is_active = 1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.Brand, &p.SKU)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	return &p, nil
}

func (m *MySQLAdapter) FindPrimaryImageURL(ctx context.Context, productID string) (string, error) {
	var url string
	err := m.db.QueryRowContext(ctx, `
		SELECT image_url FROM product_images
		WHERE product_id = ? AND is_primary = 1
		LIMIT 1`, productID,
	).Scan(&url)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query product image: %w", err)
	}

	return url, nil
}

// FindActiveCouponByCode matches the code case-sensitively regardless of the
// column collation, hence the BINARY comparison.
func (m *MySQLAdapter) FindActiveCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var (
		c          domain.Coupon
		validFrom  sql.NullTime
		validUntil sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT code, discount_type, discount_value,
		       COALESCE(minimum_amount, 0), COALESCE(maximum_discount, 0),
		       COALESCE(usage_limit, 0), used_count,
		       valid_from, valid_until, is_active
		FROM coupons WHERE BINARY code = ? AND is_active = 1`, code,
	).Scan(&c.Code, &c.DiscountType, &c.DiscountValue,
		&c.MinimumAmount, &c.MaximumDiscount,
		&c.UsageLimit, &c.UsedCount,
		&validFrom, &validUntil, &c.IsActive)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon: %w", err)
	}

	if validFrom.Valid {
		t := validFrom.Time
		c.ValidFrom = &t
	}
	if validUntil.Valid {
		t := validUntil.Time
		c.ValidUntil = &t
	}

	return &c, nil
}
