package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/glowora/cart-core/internal/core/domain"
	"github.com/glowora/cart-core/internal/core/service"
)

type HTTPHandler struct {
	carts *service.CartService
}

func NewHTTPHandler(carts *service.CartService) *HTTPHandler {
	return &HTTPHandler{carts: carts}
}

// Register wires all cart routes onto mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/cart", h.Cart)
	mux.HandleFunc("/api/cart/items", h.Items)
	mux.HandleFunc("/api/cart/coupon", h.Coupon)
	mux.HandleFunc("/api/cart/validate", h.Validate)
	mux.HandleFunc("/api/cart/quote", h.Quote)
	mux.HandleFunc("/api/cache/stats", h.CacheStats)
}

type itemRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type couponRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

type cartResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Cart    *domain.Cart `json:"cart,omitempty"`
	Details any          `json:"details,omitempty"`
}

// Cart handles GET (fetch or lazily create) and DELETE (clear).
func (h *HTTPHandler) Cart(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, cartResponse{Message: "user_id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		cart, err := h.carts.GetCart(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cartResponse{Success: true, Cart: cart})
	case http.MethodDelete:
		if err := h.carts.ClearCart(r.Context(), userID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cartResponse{Success: true, Message: "cart cleared"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Items handles POST (add), PUT (set quantity) and DELETE (remove).
func (h *HTTPHandler) Items(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cartResponse{Message: "invalid request body"})
		return
	}
	if req.UserID == "" || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, cartResponse{Message: "user_id and product_id are required"})
		return
	}

	var (
		cart *domain.Cart
		err  error
	)
	switch r.Method {
	case http.MethodPost:
		cart, err = h.carts.AddItem(r.Context(), req.UserID, req.ProductID, req.Quantity)
	case http.MethodPut:
		cart, err = h.carts.UpdateItem(r.Context(), req.UserID, req.ProductID, req.Quantity)
	case http.MethodDelete:
		cart, err = h.carts.RemoveItem(r.Context(), req.UserID, req.ProductID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Success: true, Cart: cart})
}

// Coupon handles POST (apply) and DELETE (remove).
func (h *HTTPHandler) Coupon(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req couponRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, cartResponse{Message: "invalid request body"})
			return
		}
		if req.UserID == "" || req.Code == "" {
			writeJSON(w, http.StatusBadRequest, cartResponse{Message: "user_id and code are required"})
			return
		}
		cart, err := h.carts.ApplyCoupon(r.Context(), req.UserID, req.Code)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cartResponse{Success: true, Cart: cart})
	case http.MethodDelete:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, cartResponse{Message: "user_id is required"})
			return
		}
		cart, err := h.carts.RemoveCoupon(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cartResponse{Success: true, Cart: cart})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Validate re-checks every cart line against current stock before checkout.
func (h *HTTPHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, cartResponse{Message: "user_id is required"})
		return
	}

	report, err := h.carts.ValidateCartForCheckout(r.Context(), userID)
	var invalid *service.CartInvalidError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusConflict, cartResponse{
			Message: invalid.Error(),
			Details: report,
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Success: true, Details: report})
}

// Quote returns totals for the current cart under a caller-chosen payment
// method (the COD surcharge applies here, never on the stored cart).
func (h *HTTPHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, cartResponse{Message: "user_id is required"})
		return
	}

	method := domain.PaymentOnline
	if r.URL.Query().Get("payment_method") == string(domain.PaymentCOD) {
		method = domain.PaymentCOD
	}

	totals, err := h.carts.QuoteTotals(r.Context(), userID, method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Success: true, Details: totals})
}

func (h *HTTPHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.carts.CacheStats())
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps core errors to HTTP statuses with enough structured detail
// for the storefront to render a message without re-deriving context.
func writeError(w http.ResponseWriter, err error) {
	var (
		outOfStock *service.OutOfStockError
		cartFull   *service.CartFullError
		qtyLimit   *service.QuantityLimitError
		notFound   *service.ItemNotFoundError
		notYet     *service.CouponNotYetActiveError
		expired    *service.CouponExpiredError
		minimum    *service.MinimumNotMetError
	)

	switch {
	case errors.As(err, &outOfStock):
		writeJSON(w, http.StatusConflict, cartResponse{
			Message: outOfStock.Error(),
			Details: map[string]any{
				"product_id": outOfStock.ProductID,
				"available":  outOfStock.Available,
				"requested":  outOfStock.Requested,
			},
		})
	case errors.As(err, &cartFull):
		writeJSON(w, http.StatusConflict, cartResponse{
			Message: cartFull.Error(),
			Details: map[string]any{"max_items": cartFull.Max},
		})
	case errors.As(err, &qtyLimit):
		writeJSON(w, http.StatusConflict, cartResponse{
			Message: qtyLimit.Error(),
			Details: map[string]any{"product_id": qtyLimit.ProductID, "max_quantity": qtyLimit.Max},
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, cartResponse{
			Message: notFound.Error(),
			Details: map[string]any{"product_id": notFound.ProductID},
		})
	case errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, cartResponse{Message: err.Error()})
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, cartResponse{Message: err.Error()})
	case errors.Is(err, service.ErrInvalidCoupon),
		errors.Is(err, service.ErrUsageLimitExceeded):
		writeJSON(w, http.StatusUnprocessableEntity, cartResponse{Message: err.Error()})
	case errors.As(err, &notYet):
		writeJSON(w, http.StatusUnprocessableEntity, cartResponse{
			Message: notYet.Error(),
			Details: map[string]any{"valid_from": notYet.From},
		})
	case errors.As(err, &expired):
		writeJSON(w, http.StatusUnprocessableEntity, cartResponse{
			Message: expired.Error(),
			Details: map[string]any{"valid_until": expired.Until},
		})
	case errors.As(err, &minimum):
		writeJSON(w, http.StatusUnprocessableEntity, cartResponse{
			Message: minimum.Error(),
			Details: map[string]any{"minimum_amount": minimum.Minimum},
		})
	default:
		writeJSON(w, http.StatusInternalServerError, cartResponse{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
