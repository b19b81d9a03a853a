package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/core/service"
	"github.com/agriconnect/market-core/internal/port"
)

const sessionHeader = "X-Session-Token"

type HTTPHandler struct {
	coordinator *service.Coordinator
	sessions    port.SessionStore
	logger      *slog.Logger
}

func NewHTTPHandler(coordinator *service.Coordinator, sessions port.SessionStore, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{coordinator: coordinator, sessions: sessions, logger: logger}
}

// Router mounts all API routes behind the request-id middleware.
func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(h.logger))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)

		r.Post("/listings", h.CreateListing)
		r.Get("/listings/{id}", h.GetListing)
		r.Get("/listings", h.ListListings)
		r.Patch("/listings/{id}/price", h.UpdatePrice)
		r.Patch("/listings/{id}/stock", h.UpdateStock)
		r.Post("/listings/{id}/deal", h.SetDeal)
		r.Delete("/listings/{id}/deal", h.ClearDeal)
		r.Delete("/listings/{id}", h.RetireListing)

		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications/{id}/read", h.MarkNotificationRead)

		r.Post("/session", h.SaveSession)
		r.Delete("/session", h.ClearSession)
	})

	return r
}

type buyerPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
}

type placeOrderRequest struct {
	RequestID string        `json:"request_id"`
	ListingID string        `json:"listing_id"`
	Quantity  int           `json:"quantity"`
	Buyer     *buyerPayload `json:"buyer,omitempty"`
}

type orderResponse struct {
	ID               string    `json:"id"`
	ListingID        string    `json:"listing_id"`
	ListingName      string    `json:"listing_name"`
	Unit             string    `json:"unit"`
	BuyerID          string    `json:"buyer_id"`
	SellerID         string    `json:"seller_id"`
	Quantity         int       `json:"quantity"`
	UnitPriceApplied string    `json:"unit_price_applied"`
	TotalPrice       string    `json:"total_price"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		ID:               o.ID,
		ListingID:        o.ListingID,
		ListingName:      o.ListingName,
		Unit:             o.Unit,
		BuyerID:          o.BuyerID,
		SellerID:         o.SellerID,
		Quantity:         o.Quantity,
		UnitPriceApplied: o.UnitPriceApplied.String(),
		TotalPrice:       o.TotalPrice.String(),
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
	}
}

// resolveBuyer prefers the session identified by the token header and falls
// back to the buyer block in the request body.
func (h *HTTPHandler) resolveBuyer(r *http.Request, fallback *buyerPayload) (domain.Buyer, bool) {
	if token := r.Header.Get(sessionHeader); token != "" && h.sessions != nil {
		sess, err := h.sessions.Load(r.Context(), token)
		if err == nil {
			return sess.Buyer, true
		}
	}
	if fallback != nil && fallback.ID != "" {
		return domain.Buyer{ID: fallback.ID, Name: fallback.Name, Mobile: fallback.Mobile}, true
	}
	return domain.Buyer{}, false
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ListingID == "" {
		writeError(w, http.StatusBadRequest, "listing_id is required")
		return
	}
	buyer, ok := h.resolveBuyer(r, req.Buyer)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no buyer identity")
		return
	}

	order, err := h.coordinator.PlaceOrderIdempotent(r.Context(), req.RequestID, req.ListingID, req.Quantity, buyer)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *service.InsufficientStockError
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "quantity must be at least 1")
	case errors.Is(err, service.ErrListingGone):
		writeError(w, http.StatusNotFound, "this product is no longer available")
	case errors.Is(err, service.ErrOutOfStock):
		writeError(w, http.StatusConflict, "this product is out of stock")
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"available": insufficient.Available,
		})
	case errors.Is(err, service.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "duplicate request")
	case errors.Is(err, service.ErrTooManyConflicts):
		writeError(w, http.StatusServiceUnavailable, "listing is busy, try again shortly")
	case errors.Is(err, service.ErrUnknownOutcome):
		writeError(w, http.StatusGatewayTimeout, "order outcome unknown, check your orders before retrying")
	default:
		h.logger.ErrorContext(r.Context(), "place order failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := r.URL.Query().Get("buyer_id")
	sellerID := r.URL.Query().Get("seller_id")

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case buyerID != "":
		orders, err = h.coordinator.OrdersForBuyer(r.Context(), buyerID)
	case sellerID != "":
		orders, err = h.coordinator.OrdersForSeller(r.Context(), sellerID)
	default:
		writeError(w, http.StatusBadRequest, "buyer_id or seller_id is required")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list orders failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type createListingRequest struct {
	OwnerID  string  `json:"owner_id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Location string  `json:"location"`
	Unit     string  `json:"unit"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
}

type listingResponse struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	Location        string     `json:"location"`
	Unit            string     `json:"unit"`
	PricePerUnit    string     `json:"price_per_unit"`
	StockQuantity   int        `json:"stock_quantity"`
	IsUrgentDeal    bool       `json:"is_urgent_deal"`
	DiscountPercent *int       `json:"discount_percent,omitempty"`
	DealExpiresAt   *time.Time `json:"deal_expires_at,omitempty"`
	Status          string     `json:"status"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toListingResponse(l *domain.Listing) listingResponse {
	return listingResponse{
		ID:              l.ID,
		OwnerID:         l.OwnerID,
		Name:            l.Name,
		Category:        l.Category,
		Location:        l.Location,
		Unit:            l.Unit,
		PricePerUnit:    l.PricePerUnit.String(),
		StockQuantity:   l.StockQuantity,
		IsUrgentDeal:    l.IsUrgentDeal,
		DiscountPercent: l.DiscountPercent,
		DealExpiresAt:   l.DealExpiresAt,
		Status:          string(l.Status),
		Version:         l.Version,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (h *HTTPHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "owner_id and name are required")
		return
	}

	l, err := h.coordinator.CreateListing(r.Context(), service.CreateListingInput{
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		Category:     req.Category,
		Location:     req.Location,
		Unit:         req.Unit,
		PricePerUnit: decimal.NewFromFloat(req.Price),
		Stock:        req.Stock,
	})
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

func (h *HTTPHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.coordinator.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *HTTPHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	listings, err := h.coordinator.ListingsForOwner(r.Context(), ownerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list listings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]listingResponse, 0, len(listings))
	for i := range listings {
		out = append(out, toListingResponse(&listings[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.coordinator.UpdatePrice(r.Context(), chi.URLParam(r, "id"), decimal.NewFromFloat(req.Price))
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *HTTPHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stock int `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.coordinator.UpdateStock(r.Context(), chi.URLParam(r, "id"), req.Stock)
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *HTTPHandler) SetDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DiscountPercent int        `json:"discount_percent"`
		ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.coordinator.SetUrgentDeal(r.Context(), chi.URLParam(r, "id"), req.DiscountPercent, req.ExpiresAt)
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *HTTPHandler) ClearDeal(w http.ResponseWriter, r *http.Request) {
	l, err := h.coordinator.ClearUrgentDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *HTTPHandler) RetireListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.coordinator.RetireListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *HTTPHandler) writeListingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrListingGone):
		writeError(w, http.StatusNotFound, "listing not found")
	case errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidStock),
		errors.Is(err, service.ErrInvalidDiscount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTooManyConflicts):
		writeError(w, http.StatusServiceUnavailable, "listing is busy, try again shortly")
	default:
		h.logger.ErrorContext(r.Context(), "listing operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type notificationResponse struct {
	ID        string    `json:"id"`
	SellerID  string    `json:"seller_id"`
	OrderID   string    `json:"order_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("seller_id")
	if sellerID == "" {
		writeError(w, http.StatusBadRequest, "seller_id is required")
		return
	}
	notifications, err := h.coordinator.NotificationsForSeller(r.Context(), sellerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list notifications failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationResponse{
			ID: n.ID, SellerID: n.SellerID, OrderID: n.OrderID,
			Message: n.Message, Read: n.Read, CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, port.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "mark notification read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusNotImplemented, "sessions not configured")
		return
	}
	token := r.Header.Get(sessionHeader)
	if token == "" {
		writeError(w, http.StatusBadRequest, "session token header is required")
		return
	}
	var req buyerPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid session payload")
		return
	}
	sess := &domain.SessionContext{
		Buyer:           domain.Buyer{ID: req.ID, Name: req.Name, Mobile: req.Mobile},
		AuthenticatedAt: time.Now(),
	}
	if err := h.sessions.Save(r.Context(), token, sess); err != nil {
		h.logger.ErrorContext(r.Context(), "save session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusNotImplemented, "sessions not configured")
		return
	}
	token := r.Header.Get(sessionHeader)
	if token == "" {
		writeError(w, http.StatusBadRequest, "session token header is required")
		return
	}
	if err := h.sessions.Clear(r.Context(), token); err != nil {
		h.logger.ErrorContext(r.Context(), "clear session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
