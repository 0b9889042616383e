package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/boardtrack/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// OrderHandler provides HTTP handlers for manufacturing orders.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs a handler with the provided service.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// OrderRouter registers order routes on the given router.
func OrderRouter(r chi.Router, orders *services.OrderService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewOrderHandler(orders)

	r.Use(authMiddleware)
	r.Get("/", handler.ListOrders)
	r.Post("/", handler.CreateOrder)
	r.Get("/lookup", handler.LookupOrder)
	r.Delete("/{orderID}", handler.DeleteOrder)
}

// LookupOrder resolves an order by the number printed on its traveler.
func (h *OrderHandler) LookupOrder(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderNumber := strings.TrimSpace(r.URL.Query().Get("order_number"))
	if orderNumber == "" {
		writeError(w, http.StatusBadRequest, "order number is required")
		return
	}

	order, err := h.orders.GetByNumber(r.Context(), sess, orderNumber)
	if err != nil {
		writeDomainError(w, err, "failed to look up order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orders.List(r.Context(), sess)
	if err != nil {
		writeDomainError(w, err, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	if req.OrderNumber == "" {
		writeError(w, http.StatusBadRequest, "order number is required")
		return
	}

	order, err := h.orders.Create(r.Context(), sess, req.OrderNumber, req.Description)
	if err != nil {
		writeDomainError(w, err, "failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orders.Delete(r.Context(), sess, orderID); err != nil {
		writeDomainError(w, err, "failed to delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type CreateOrderRequest struct {
	OrderNumber string `json:"order_number"`
	Description string `json:"description"`
}
