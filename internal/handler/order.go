package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// submitOrderRequest is the JSON request body for POST /orders.
type submitOrderRequest struct {
	Type        string   `json:"type"`
	Participant string   `json:"participant"`
	Side        string   `json:"side"`
	Symbol      string   `json:"symbol"`
	Price       *float64 `json:"price"`
	Quantity    int64    `json:"quantity"`
	ExpiresAt   *string  `json:"expires_at"`
}

// orderResponse is the JSON representation of an order. Nullable
// fields use pointers.
type orderResponse struct {
	OrderID           string          `json:"order_id"`
	Type              string          `json:"type"`
	Participant       string          `json:"participant"`
	Side              string          `json:"side"`
	Symbol            string          `json:"symbol"`
	Price             *float64        `json:"price"`
	Quantity          int64           `json:"quantity"`
	FilledQuantity    int64           `json:"filled_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
	ExpiresAt         *string         `json:"expires_at"`
	CreatedAt         string          `json:"created_at"`
	CancelledAt       *string         `json:"cancelled_at"`
	ExpiredAt         *string         `json:"expired_at"`
	AveragePrice      *float64        `json:"average_price"`
	Trades            []tradeResponse `json:"trades"`
}

// tradeResponse is a single trade in the order response.
type tradeResponse struct {
	TradeID     string  `json:"trade_id"`
	BuyOrderID  string  `json:"buy_order_id"`
	SellOrderID string  `json:"sell_order_id"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	ExecutedAt  string  `json:"executed_at"`
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           o.OrderID,
		Type:              string(o.Type),
		Participant:       o.Participant,
		Side:              string(o.Side),
		Symbol:            o.Symbol,
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt.Format(time.RFC3339Nano),
		Trades:            make([]tradeResponse, 0, len(o.Trades)),
	}
	if o.Type == domain.OrderTypeLimit {
		price := domain.CentsToDollars(o.Price)
		resp.Price = &price
	}
	if o.ExpiresAt != nil {
		s := o.ExpiresAt.Format(time.RFC3339Nano)
		resp.ExpiresAt = &s
	}
	if o.CancelledAt != nil {
		s := o.CancelledAt.Format(time.RFC3339Nano)
		resp.CancelledAt = &s
	}
	if o.ExpiredAt != nil {
		s := o.ExpiredAt.Format(time.RFC3339Nano)
		resp.ExpiredAt = &s
	}
	if avg, ok := o.AveragePrice(); ok {
		d := domain.CentsToDollars(avg)
		resp.AveragePrice = &d
	}
	for _, t := range o.Trades {
		resp.Trades = append(resp.Trades, tradeResponse{
			TradeID:     t.TradeID,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Price:       domain.CentsToDollars(t.Price),
			Quantity:    t.Quantity,
			ExecutedAt:  t.ExecutedAt.Format(time.RFC3339Nano),
		})
	}
	return resp
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "expires_at must be a valid RFC 3339 timestamp")
			return
		}
		expiresAt = &t
	}

	order, err := h.orderSvc.SubmitOrder(service.SubmitOrderRequest{
		Type:        domain.OrderType(req.Type),
		Participant: req.Participant,
		Side:        domain.OrderSide(req.Side),
		Symbol:      req.Symbol,
		Price:       req.Price,
		Quantity:    req.Quantity,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		mapDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}?participant=.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("participant")
	order, err := h.orderSvc.CancelOrder(chi.URLParam(r, "order_id"), requester)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// listOrdersResponse is the JSON response for order listings.
type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
}

// ListOrders handles GET /participants/{participant}/orders.
// With ?open=true only resting orders are returned; otherwise the
// listing supports ?status=, ?page= and ?limit=.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")

	if r.URL.Query().Get("open") == "true" {
		orders := h.orderSvc.ListOpenOrders(participant)
		out := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			out = append(out, buildOrderResponse(o))
		}
		WriteJSON(w, http.StatusOK, listOrdersResponse{Orders: out, Total: len(out), Page: 1})
		return
	}

	var status *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.OrderStatus(s)
		status = &st
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, total, err := h.orderSvc.ListOrders(participant, status, page, limit)
	if err != nil {
		mapDomainError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, buildOrderResponse(o))
	}
	if page < 1 {
		page = 1
	}
	WriteJSON(w, http.StatusOK, listOrdersResponse{Orders: out, Total: total, Page: page})
}
