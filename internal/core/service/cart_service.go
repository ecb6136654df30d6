package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/glowora/cart-core/internal/core/cache"
	"github.com/glowora/cart-core/internal/core/domain"
	"github.com/glowora/cart-core/internal/core/pricing"
	"github.com/glowora/cart-core/internal/port"
)

const (
	// MaxCartItems caps the number of distinct product lines per cart.
	MaxCartItems = 20
	// MaxItemQuantity caps the quantity of a single line; the effective
	// bound is min(stock, MaxItemQuantity).
	MaxItemQuantity = 10

	DefaultCartTTL = 24 * time.Hour

	cartKeyPrefix = "cart:"
)

// CheckoutReport is the per-item stock re-validation result.
type CheckoutReport struct {
	Valid bool             `json:"valid"`
	Items []ItemValidation `json:"items"`
}

// CartService owns the per-user cart documents. Carts live in the cache as
// JSON under cart:{userID} with a sliding expiry refreshed on every write.
// Mutations are read-modify-write with no locking: two concurrent requests
// for the same user race and the later save wins.
type CartService struct {
	cache     *cache.KeyValueCache
	products  port.ProductRepository
	validator *CouponValidator
	cartTTL   time.Duration

	now func() time.Time
	log *logrus.Entry
}

func NewCartService(kv *cache.KeyValueCache, products port.ProductRepository, validator *CouponValidator, cartTTL time.Duration) *CartService {
	if cartTTL <= 0 {
		cartTTL = DefaultCartTTL
	}
	return &CartService{
		cache:     kv,
		products:  products,
		validator: validator,
		cartTTL:   cartTTL,
		now:       time.Now,
		log:       logrus.WithField("component", "cart"),
	}
}

func cartKey(userID string) string {
	return cartKeyPrefix + userID
}

// GetCart returns the user's cart, lazily creating an empty one on first
// access. A cart whose sliding expiry has passed is deleted and replaced by
// a fresh empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	key := cartKey(userID)

	var cart domain.Cart
	found, err := s.cache.Get(ctx, key, &cart)
	if err != nil {
		return nil, fmt.Errorf("read cart for %s: %w", userID, err)
	}
	if found && !cart.Expired(s.now()) {
		return &cart, nil
	}

	if found {
		// expired: drop the stale document and start fresh
		if err := s.cache.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("evict expired cart for %s: %w", userID, err)
		}
	}

	fresh := s.newCart(userID)
	if err := s.save(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// AddItem puts quantity units of a product into the cart, merging with an
// existing line. The combined quantity is validated against current stock.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	product, err := s.lookupProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	existing := cart.Item(productID)
	if existing == nil && len(cart.Items) >= MaxCartItems {
		return nil, &CartFullError{Max: MaxCartItems}
	}

	requested := quantity
	if existing != nil {
		requested += existing.Quantity
	}
	if requested > product.StockQuantity {
		return nil, &OutOfStockError{ProductID: productID, Available: product.StockQuantity, Requested: requested}
	}
	if requested > MaxItemQuantity {
		return nil, &QuantityLimitError{ProductID: productID, Max: MaxItemQuantity}
	}

	now := s.now()
	if existing != nil {
		existing.Quantity = requested
		existing.Price = product.Price
		existing.TotalPrice = product.Price * float64(requested)
		existing.UpdatedAt = now
	} else {
		imageURL, err := s.products.FindPrimaryImageURL(ctx, productID)
		if err != nil {
			s.log.WithError(err).WithField("product_id", productID).Warn("primary image lookup failed")
			imageURL = ""
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:  productID,
			Name:       product.Name,
			Price:      product.Price,
			Quantity:   quantity,
			TotalPrice: product.Price * float64(quantity),
			StockAtAdd: product.StockQuantity,
			Brand:      product.Brand,
			SKU:        product.SKU,
			ImageURL:   imageURL,
			AddedAt:    now,
			UpdatedAt:  now,
		})
	}

	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateItem sets an absolute quantity for an existing line. Zero or negative
// quantity removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item := cart.Item(productID)
	if item == nil {
		return nil, &ItemNotFoundError{ProductID: productID}
	}

	product, err := s.lookupProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.StockQuantity {
		return nil, &OutOfStockError{ProductID: productID, Available: product.StockQuantity, Requested: quantity}
	}
	if quantity > MaxItemQuantity {
		return nil, &QuantityLimitError{ProductID: productID, Max: MaxItemQuantity}
	}

	item.Quantity = quantity
	item.Price = product.Price
	item.TotalPrice = product.Price * float64(quantity)
	item.UpdatedAt = s.now()

	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &ItemNotFoundError{ProductID: productID}
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	if len(cart.Items) == 0 {
		cart.Coupon = nil
	}

	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// ClearCart deletes the cache entry entirely; no empty cart is left behind.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, cartKey(userID)); err != nil {
		return fmt.Errorf("clear cart for %s: %w", userID, err)
	}
	return nil
}

func (s *CartService) ApplyCoupon(ctx context.Context, userID, code string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	app, err := s.validator.Validate(ctx, code, pricing.Subtotal(cart.Items))
	if err != nil {
		return nil, err
	}

	cart.Coupon = &domain.CouponRef{
		Code:      app.Coupon.Code,
		Type:      app.Coupon.DiscountType,
		Value:     app.Coupon.DiscountValue,
		AppliedAt: s.now(),
	}
	coupon := app.Coupon
	cart.Totals = pricing.ComputeTotals(cart.Items, &coupon, domain.PaymentOnline)

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) RemoveCoupon(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart.Coupon = nil
	cart.Totals = pricing.ComputeTotals(cart.Items, nil, domain.PaymentOnline)

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// ValidateCartForCheckout re-checks every line against current inventory and
// returns a per-item report. When any line fails, the report is returned
// together with a CartInvalidError listing all failing lines.
func (s *CartService) ValidateCartForCheckout(ctx context.Context, userID string) (*CheckoutReport, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	report := &CheckoutReport{Valid: true}
	var failing []ItemValidation

	for _, item := range cart.Items {
		v := ItemValidation{
			ProductID: item.ProductID,
			Name:      item.Name,
			Requested: item.Quantity,
			Valid:     true,
		}

		product, err := s.products.FindActiveProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("look up product %s: %w", item.ProductID, err)
		}
		switch {
		case product == nil:
			v.Valid = false
			v.Reason = "product is no longer available"
		case item.Quantity > product.StockQuantity:
			v.Valid = false
			v.Available = product.StockQuantity
			v.Reason = "insufficient stock"
		default:
			v.Available = product.StockQuantity
		}

		report.Items = append(report.Items, v)
		if !v.Valid {
			failing = append(failing, v)
		}
	}

	if len(failing) > 0 {
		report.Valid = false
		return report, &CartInvalidError{Items: failing}
	}
	return report, nil
}

// QuoteTotals recomputes totals for the current cart under the given payment
// method without persisting them. This is where a COD checkout picks up the
// COD surcharge; the surcharge is never stored on the cart.
func (s *CartService) QuoteTotals(ctx context.Context, userID string, method domain.PaymentMethod) (*domain.Totals, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	coupon, err := s.resolveCoupon(ctx, cart)
	if err != nil {
		return nil, err
	}

	totals := pricing.ComputeTotals(cart.Items, coupon, method)
	return &totals, nil
}

// CacheStats exposes the cache-layer counters for observability callers.
func (s *CartService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *CartService) newCart(userID string) *domain.Cart {
	now := s.now()
	return &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     []domain.CartItem{},
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cartTTL),
	}
}

// save refreshes the sliding expiry and writes the cart through the cache.
func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	now := s.now()
	cart.UpdatedAt = now
	cart.ExpiresAt = now.Add(s.cartTTL)

	if err := s.cache.Set(ctx, cartKey(cart.UserID), cart, s.cartTTL); err != nil {
		return fmt.Errorf("save cart for %s: %w", cart.UserID, err)
	}
	return nil
}

// recompute re-validates any attached coupon and recalculates the totals
// from scratch. A coupon that no longer validates (subtotal dropped below its
// minimum, window closed, limit reached) is removed and the mutation
// proceeds without it.
func (s *CartService) recompute(ctx context.Context, cart *domain.Cart) error {
	coupon, err := s.resolveCoupon(ctx, cart)
	if err != nil {
		return err
	}
	cart.Totals = pricing.ComputeTotals(cart.Items, coupon, domain.PaymentOnline)
	return nil
}

func (s *CartService) resolveCoupon(ctx context.Context, cart *domain.Cart) (*domain.Coupon, error) {
	if cart.Coupon == nil {
		return nil, nil
	}

	app, err := s.validator.Validate(ctx, cart.Coupon.Code, pricing.Subtotal(cart.Items))
	if err != nil {
		if isCouponRejection(err) {
			s.log.WithFields(logrus.Fields{
				"user_id": cart.UserID,
				"code":    cart.Coupon.Code,
			}).Info("coupon no longer valid, removing from cart")
			cart.Coupon = nil
			return nil, nil
		}
		return nil, err
	}

	coupon := app.Coupon
	return &coupon, nil
}

func (s *CartService) lookupProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.products.FindActiveProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("look up product %s: %w", productID, err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return product, nil
}
