package domain

import "time"

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentCOD    PaymentMethod = "cod"
)

// CartItem is one product line in a cart. TotalPrice is derived from
// Price * Quantity and is recomputed on every quantity change.
type CartItem struct {
	ProductID  string    `json:"product_id"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	TotalPrice float64   `json:"total_price"`
	StockAtAdd int       `json:"stock_at_add"`
	Brand      string    `json:"brand,omitempty"`
	SKU        string    `json:"sku,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	AddedAt    time.Time `json:"added_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CouponRef records the coupon currently attached to a cart. The full coupon
// entity lives in the database and is re-read on every validation.
type CouponRef struct {
	Code      string       `json:"code"`
	Type      DiscountType `json:"type"`
	Value     float64      `json:"value"`
	AppliedAt time.Time    `json:"applied_at"`
}

type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Cart is the per-user cart document, serialized to JSON in the cache.
// ExpiresAt is a sliding window, reset forward on every write.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	Coupon    *CouponRef `json:"coupon,omitempty"`
	Totals    Totals     `json:"totals"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Item returns a pointer to the line for productID, or nil if absent.
func (c *Cart) Item(productID string) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Cart) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
