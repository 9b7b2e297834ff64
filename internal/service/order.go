package service

import (
	"fmt"
	"regexp"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/store"
)

var participantRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusOpen:            true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
	domain.OrderStatusExpired:         true,
}

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	Type        domain.OrderType
	Participant string
	Side        domain.OrderSide
	Symbol      string
	Price       *float64 // required for limit, must be nil for market
	Quantity    int64
	ExpiresAt   *time.Time // optional for limit, must be nil for market
}

// OrderService handles order submission, retrieval, cancellation, and listing.
type OrderService struct {
	matcher    *engine.Matcher
	expiry     *engine.ExpiryManager
	orderStore *store.OrderStore
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(matcher *engine.Matcher, expiry *engine.ExpiryManager, orderStore *store.OrderStore) *OrderService {
	return &OrderService{
		matcher:    matcher,
		expiry:     expiry,
		orderStore: orderStore,
	}
}

// SubmitOrder validates the request, creates the order and runs the
// matching engine.
func (s *OrderService) SubmitOrder(req SubmitOrderRequest) (*domain.Order, error) {
	if req.Type != domain.OrderTypeLimit && req.Type != domain.OrderTypeMarket {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order type: %s. Must be one of: limit, market", req.Type),
		}
	}
	if !participantRegex.MatchString(req.Participant) {
		return nil, &domain.ValidationError{
			Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if req.Side != domain.OrderSideBid && req.Side != domain.OrderSideAsk {
		return nil, &domain.ValidationError{Message: "side must be 'bid' or 'ask'"}
	}
	if !symbolRegex.MatchString(req.Symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	if req.Type == domain.OrderTypeLimit {
		return s.submitLimitOrder(req)
	}
	return s.submitMarketOrder(req)
}

func (s *OrderService) submitLimitOrder(req SubmitOrderRequest) (*domain.Order, error) {
	if req.Price == nil {
		return nil, &domain.ValidationError{Message: "price is required for limit orders"}
	}
	if *req.Price <= 0 {
		return nil, &domain.ValidationError{Message: "price must be greater than 0"}
	}
	priceCents, err := domain.DollarsToCents(*req.Price)
	if err != nil {
		return nil, &domain.ValidationError{Message: "price must have at most 2 decimal places"}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, &domain.ValidationError{Message: "expires_at must be in the future"}
	}

	order := &domain.Order{
		Type:        domain.OrderTypeLimit,
		Participant: req.Participant,
		Side:        req.Side,
		Symbol:      req.Symbol,
		Price:       priceCents,
		Quantity:    req.Quantity,
		ExpiresAt:   req.ExpiresAt,
	}

	if _, err := s.matcher.MatchLimitOrder(order); err != nil {
		return nil, err
	}

	// Track for expiration only if a remainder actually rested.
	if order.RemainingQuantity > 0 {
		s.expiry.Add(order)
	}
	return order, nil
}

func (s *OrderService) submitMarketOrder(req SubmitOrderRequest) (*domain.Order, error) {
	if req.Price != nil {
		return nil, &domain.ValidationError{Message: "price must not be set for market orders"}
	}
	if req.ExpiresAt != nil {
		return nil, &domain.ValidationError{Message: "expires_at must not be set for market orders"}
	}

	order := &domain.Order{
		Type:        domain.OrderTypeMarket,
		Participant: req.Participant,
		Side:        req.Side,
		Symbol:      req.Symbol,
		Quantity:    req.Quantity,
	}

	if _, err := s.matcher.MatchMarketOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(orderID string) (*domain.Order, error) {
	return s.orderStore.Get(orderID)
}

// CancelOrder cancels an order on behalf of the requesting participant.
func (s *OrderService) CancelOrder(orderID, requester string) (*domain.Order, error) {
	if !participantRegex.MatchString(requester) {
		return nil, &domain.ValidationError{
			Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	order, err := s.matcher.CancelOrder(orderID, requester)
	if err != nil {
		return nil, err
	}
	s.expiry.Remove(orderID)
	return order, nil
}

// ListOrders returns a participant's orders, newest first, optionally
// filtered by status, with 1-based pagination.
func (s *OrderService) ListOrders(participant string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{Message: fmt.Sprintf("unknown order status: %s", *status)}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	orders, total := s.orderStore.ListByParticipant(participant, status, page, limit)
	return orders, total, nil
}

// ListOpenOrders returns a participant's resting orders, newest first.
func (s *OrderService) ListOpenOrders(participant string) []*domain.Order {
	return s.orderStore.ListOpenByParticipant(participant)
}
