package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/efreitasn/toyexchange/internal/fabric"
	"github.com/efreitasn/toyexchange/internal/msg"
	"github.com/google/uuid"
)

// OrderHandler accepts order submissions and publishes them to the fabric.
// Intake is pure translation: the order is not validated here beyond JSON
// parsing — risk validation happens asynchronously in the pipeline.
type OrderHandler struct {
	fabric fabric.Fabric
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(f fabric.Fabric) *OrderHandler {
	return &OrderHandler{fabric: f}
}

// submitOrderRequest is the JSON request body for POST /orders. Every field
// is optional; omitted fields fall back to demo defaults.
type submitOrderRequest struct {
	UserID string `json:"user_id"`
	Side   string `json:"side"`
	Qty    int64  `json:"qty"`
	Symbol string `json:"symbol"`
}

// publishedResponse echoes the message that was published.
type publishedResponse struct {
	Published msg.OrderV1 `json:"published"`
}

// Submit handles POST /orders: mint an order id, publish a persistent
// order.v1 to the new-orders topic, and echo the published message. An empty
// body is allowed and uses the defaults.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	req := submitOrderRequest{UserID: "u1", Side: "BUY", Qty: 1, Symbol: "AAPL"}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}

	order := msg.OrderV1{
		Type:    msg.TypeOrder,
		OrderID: uuid.New().String(),
		UserID:  req.UserID,
		Symbol:  strings.ToUpper(req.Symbol),
		Side:    strings.ToUpper(req.Side),
		Qty:     req.Qty,
	}
	body, err := msg.Encode(order)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}
	if err := h.fabric.Publish(r.Context(), fabric.ExchangeOrders, fabric.KeyNew, body); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "publish_failed", "Could not publish the order")
		return
	}

	WriteJSON(w, http.StatusAccepted, publishedResponse{Published: order})
}
