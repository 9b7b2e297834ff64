package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/service"
)

// SecurityHandler handles HTTP requests for security registry endpoints.
type SecurityHandler struct {
	securitySvc *service.SecurityService
	marketSvc   *service.MarketDataService
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(securitySvc *service.SecurityService, marketSvc *service.MarketDataService) *SecurityHandler {
	return &SecurityHandler{securitySvc: securitySvc, marketSvc: marketSvc}
}

// createSecurityRequest is the JSON request body for POST /securities.
type createSecurityRequest struct {
	Symbol           string   `json:"symbol"`
	Fundamental      float64  `json:"fundamental"`
	InitialPrice     *float64 `json:"initial_price"`
	Volatility       *float64 `json:"volatility"`
	FloatOutstanding int64    `json:"float_outstanding"`
}

// securityResponse is the JSON representation of a registry snapshot.
type securityResponse struct {
	Symbol            string  `json:"symbol"`
	Fundamental       float64 `json:"fundamental"`
	LastPrice         float64 `json:"last_price"`
	BidPrice          float64 `json:"bid_price"`
	AskPrice          float64 `json:"ask_price"`
	Volatility        float64 `json:"volatility"`
	FloatOutstanding  int64   `json:"float_outstanding"`
	ShortInterest     float64 `json:"short_interest"`
	AvailableToBorrow int64   `json:"available_to_borrow"`
	Halted            bool    `json:"halted"`
	UpdatedAt         string  `json:"updated_at"`
}

func buildSecurityResponse(s *service.SecurityResponse) securityResponse {
	return securityResponse{
		Symbol:            s.Symbol,
		Fundamental:       s.Fundamental,
		LastPrice:         domain.CentsToDollars(s.LastPrice),
		BidPrice:          domain.CentsToDollars(s.BidPrice),
		AskPrice:          domain.CentsToDollars(s.AskPrice),
		Volatility:        s.Volatility,
		FloatOutstanding:  s.FloatOutstanding,
		ShortInterest:     s.ShortInterest,
		AvailableToBorrow: s.AvailableToBorrow,
		Halted:            s.Halted,
		UpdatedAt:         s.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// Create handles POST /securities.
func (h *SecurityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSecurityRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	snap, err := h.securitySvc.Create(service.CreateSecurityRequest{
		Symbol:           req.Symbol,
		Fundamental:      req.Fundamental,
		InitialPrice:     req.InitialPrice,
		Volatility:       req.Volatility,
		FloatOutstanding: req.FloatOutstanding,
	})
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildSecurityResponse(snap))
}

// Get handles GET /securities/{symbol}.
func (h *SecurityHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.securitySvc.Get(chi.URLParam(r, "symbol"))
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSecurityResponse(snap))
}

// List handles GET /securities.
func (h *SecurityHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.securitySvc.List()
	out := make([]securityResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, buildSecurityResponse(s))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"securities": out})
}

// updateFundamentalRequest is the JSON body for the statistics feed.
type updateFundamentalRequest struct {
	Fundamental float64 `json:"fundamental"`
}

// UpdateFundamental handles PUT /securities/{symbol}/fundamental.
func (h *SecurityHandler) UpdateFundamental(w http.ResponseWriter, r *http.Request) {
	var req updateFundamentalRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	symbol := chi.URLParam(r, "symbol")
	if err := h.securitySvc.UpdateFundamental(symbol, req.Fundamental); err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "fundamental": req.Fundamental})
}

// bookLevelResponse is one aggregated price level.
type bookLevelResponse struct {
	Price         float64 `json:"price"`
	TotalQuantity int64   `json:"total_quantity"`
	OrderCount    int     `json:"order_count"`
}

// bookResponse is the JSON response for GET /securities/{symbol}/book.
type bookResponse struct {
	Symbol     string              `json:"symbol"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     float64             `json:"spread"`
	SnapshotAt string              `json:"snapshot_at"`
}

// GetBook handles GET /securities/{symbol}/book?depth=.
func (h *SecurityHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := 10
	if d := r.URL.Query().Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be an integer")
			return
		}
		depth = n
	}

	book, err := h.marketSvc.GetBook(chi.URLParam(r, "symbol"), depth)
	if err != nil {
		mapDomainError(w, err)
		return
	}

	resp := bookResponse{
		Symbol:     book.Symbol,
		Bids:       make([]bookLevelResponse, 0, len(book.Bids)),
		Asks:       make([]bookLevelResponse, 0, len(book.Asks)),
		Spread:     domain.CentsToDollars(book.Spread),
		SnapshotAt: book.SnapshotAt.Format(time.RFC3339Nano),
	}
	for _, l := range book.Bids {
		resp.Bids = append(resp.Bids, bookLevelResponse{
			Price:         domain.CentsToDollars(l.Price),
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		})
	}
	for _, l := range book.Asks {
		resp.Asks = append(resp.Asks, bookLevelResponse{
			Price:         domain.CentsToDollars(l.Price),
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// quoteResponse is the JSON response for GET /securities/{symbol}/quote.
type quoteResponse struct {
	Symbol            string               `json:"symbol"`
	Side              string               `json:"side"`
	QuantityRequested int64                `json:"quantity_requested"`
	QuantityAvailable int64                `json:"quantity_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *float64             `json:"estimated_avg_price"`
	EstimatedTotal    *float64             `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

type quoteLevelResponse struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// GetQuote handles GET /securities/{symbol}/quote?side=&quantity=.
func (h *SecurityHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	side := domain.OrderSide(r.URL.Query().Get("side"))
	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity must be a positive integer")
		return
	}

	quote, err := h.marketSvc.GetQuote(chi.URLParam(r, "symbol"), side, quantity)
	if err != nil {
		mapDomainError(w, err)
		return
	}

	resp := quoteResponse{
		Symbol:            quote.Symbol,
		Side:              string(quote.Side),
		QuantityRequested: quote.QuantityRequested,
		QuantityAvailable: quote.QuantityAvailable,
		FullyFillable:     quote.FullyFillable,
		PriceLevels:       make([]quoteLevelResponse, 0, len(quote.PriceLevels)),
		QuotedAt:          quote.QuotedAt.Format(time.RFC3339Nano),
	}
	if quote.EstimatedAvgPrice != nil {
		p := domain.CentsToDollars(*quote.EstimatedAvgPrice)
		resp.EstimatedAvgPrice = &p
	}
	if quote.EstimatedTotal != nil {
		t := domain.CentsToDollars(*quote.EstimatedTotal)
		resp.EstimatedTotal = &t
	}
	for _, l := range quote.PriceLevels {
		resp.PriceLevels = append(resp.PriceLevels, quoteLevelResponse{
			Price:    domain.CentsToDollars(l.Price),
			Quantity: l.Quantity,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}
